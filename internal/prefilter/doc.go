// Package prefilter scores catalog candidates against extracted product
// details before any vision calls are spent on them. Scoring is a pure
// function of its inputs so the same extraction and candidate set always
// produce the same ranking.
package prefilter

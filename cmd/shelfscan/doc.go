// Command shelfscan ingests retail shelf photos, enriches each detected
// product against a catalog, and reports the outcomes.
package main

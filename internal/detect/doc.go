// Package detect handles the intake side of the pipeline: calling the object
// detection service, filtering its output by confidence, and cropping
// detection regions out of shelf photos for downstream vision calls.
package detect

// Package detect turns the range x beam energy map into a de-duplicated list
// of (distance, angle) detections.
//
// The stages run in a fixed order every frame: beam equalization, dead-zone
// clearing, adaptive per-range thresholding, far-range gain boost, non-max
// suppression peak extraction, ego-motion Doppler-notch rejection with
// slow-mover rescue, and angle-bucketed compaction. The Sensitivity mapper
// produces the complete parameter set from a single external control.
package detect

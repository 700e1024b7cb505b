// Package device picks the compute device used for model inference.
//
// Selection walks a priority list (cuda, mps, cpu by default) and returns the
// first kind the prober reports as available. CPU is the universal fallback,
// so selection never fails.
package device

// Package transform defines the per-sample transform stage the decode
// workers run after decoding: bounding box, rescale, crop, mirror and
// channel normalization. The pipeline talks to a Stage only; the host
// implementation is built in and an accelerator-backed implementation can
// be registered under the "device" name.
package transform

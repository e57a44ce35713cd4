// Package dsp contains numeric kernels used by the blocks: complex
// rotator, window-designed low-pass filters, rational ratio search,
// polyphase resampler and power spectrum.
package dsp

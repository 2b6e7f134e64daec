// Package dynamics provides the stereo dynamics engines used by effect nodes.
//
// Included processors:
//   - Compressor: Stereo-linked compressor with downward, upward and boosting
//     modes, feed-forward or feed-back topology, filtered sidechain,
//     lookahead and per-block metering.
//   - Limiter: Peak limiter built on a hard-knee compressor at maximum ratio.
//
// Gain computation happens in the log2 domain. Build with the fastmath tag to
// use polynomial approximations for log2/exp2.
package dynamics

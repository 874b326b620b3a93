// Package reducer shrinks oversized videos below a hard size ceiling.
//
// A reduction request runs as an explicit state machine:
//   - Probing: a transient playback handle reports duration and dimensions
//   - Planning: the budget calculator derives a target duration and bitrate
//   - Encoding: the frame-relay encoder plays the source, copies each rendered
//     frame onto a rasterizer surface and feeds the surface into an encoding sink
//   - Evaluating: the candidate is accepted if it fits, otherwise the next
//     attempt on the decay ladder is planned
//
// Sources already under the ceiling are returned unchanged without probing.
//
// Playback, rasterization and encoding are collaborators behind the Player,
// Rasterizer and Encoders interfaces; internal/transcoder and internal/canvas
// provide the ffmpeg and in-memory implementations.
package reducer

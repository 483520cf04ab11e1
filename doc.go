// Package decodersdk implements an embeddable media player back-end: it
// demultiplexes a local file or live network stream, decodes audio and
// video through the native codec library, keeps both streams in lock-step
// via a master clock, exposes decoded frames through bounded thread-safe
// queues, and optionally tees the compressed stream into a recording.
package decodersdk

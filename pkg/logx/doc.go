// Package logx wraps zerolog behind a small Logger value type whose
// output targets can be swapped at runtime (config hot-reload).
package logx

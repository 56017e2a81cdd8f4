// Package prebuilt provides ready-made graphs ("prebuilts") and a registry
// that lets servers and CLIs look them up by name. Each prebuilt lives in its
// own subpackage and exposes a Builder; callers compile graphs once at
// startup, injecting persistence and observability through compile options.
package prebuilt

//go:build animadebug

package core

// DebugBuild is true when the engine is compiled with the animadebug tag.
const DebugBuild = true

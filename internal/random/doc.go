// Package random provides the uniform number sources used to jitter dataset
// timestamps. Sources are injected so tests can replay exact draws.
package random

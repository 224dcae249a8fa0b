//go:build cuda

package capability

const cudaCompiled = true

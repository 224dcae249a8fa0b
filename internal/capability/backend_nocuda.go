//go:build !cuda

package capability

const cudaCompiled = false

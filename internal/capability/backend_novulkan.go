//go:build !vulkan

package capability

const vulkanCompiled = false

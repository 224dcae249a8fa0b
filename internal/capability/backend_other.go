//go:build !darwin

package capability

const (
	metalCompiled      = false
	accelerateCompiled = false
)

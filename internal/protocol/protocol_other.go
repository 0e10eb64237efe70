//go:build !linux && !windows

package protocol

func register(scheme, exe string) error {
	return nil
}

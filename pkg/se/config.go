package se

import "time"

// Config bounds how long the session waits on the controller.
type Config struct {
	// CommandTimeout applies to every opcode except Transceive.
	CommandTimeout time.Duration
	// TransceiveTimeout applies to APDU exchanges.
	TransceiveTimeout time.Duration
	// ResetSettle is how long Reset waits after the controller acknowledged,
	// before the session is usable again. Zero disables the wait.
	ResetSettle time.Duration
}

// DefaultConfig returns the timeouts used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		CommandTimeout:    2 * time.Second,
		TransceiveTimeout: 10 * time.Second,
	}
}

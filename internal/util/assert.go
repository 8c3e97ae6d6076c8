package util

import "github.com/rs/zerolog/log"

// Assert exits with the given message if the condition is false
func Assert(condition bool, msg string) {
	if !condition {
		log.Fatal().Msgf("Assertion failed: %s", msg)
	}
}

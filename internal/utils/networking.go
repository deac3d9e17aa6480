package utils

import (
	"fmt"
	"math/rand/v2"
)

func RandomUserAgent() string {
	// recent Chrome majors
	const minMajor = 134
	const maxMajor = 141

	major := rand.IntN(maxMajor-minMajor+1) + minMajor
	return fmt.Sprintf(
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/%d.0.0.0 Safari/537.36",
		major,
	)
}

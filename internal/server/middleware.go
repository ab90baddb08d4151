package server

import (
	"slices"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog/log"
)

// ZstdMiddleware compresses response bodies with zstd when the client
// accepts it. Whitelisted routes are served uncompressed.
func ZstdMiddleware(whitelistedRoutes []string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if slices.Contains(whitelistedRoutes, c.Path()) {
			return c.Next()
		}

		if err := c.Next(); err != nil {
			return err
		}

		if !strings.Contains(strings.ToLower(c.Get(fiber.HeaderAcceptEncoding)), "zstd") {
			return nil
		}
		body := c.Response().Body()
		if len(body) == 0 {
			return nil
		}

		encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			log.Err(err).Msg("failed to create zstd encoder")
			return nil
		}
		defer encoder.Close()

		c.Response().SetBodyRaw(encoder.EncodeAll(body, make([]byte, 0, len(body))))
		c.Set(fiber.HeaderContentEncoding, "zstd")
		c.Vary(fiber.HeaderAcceptEncoding)
		return nil
	}
}

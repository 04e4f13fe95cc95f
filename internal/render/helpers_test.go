package render

import "github.com/helix-research/pipeline-cli/internal/config"

func testRenderConfig() config.RenderConfig {
	return config.RenderConfig{
		TimeoutSecs:   60,
		TileHeight:    900,
		TileOverlap:   100,
		MaxTiles:      5,
		ViewportWidth: 1280,
	}
}

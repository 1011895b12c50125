package endpoints

import (
	"github.com/jackzampolin/sitebookify/internal/api"
)

// All returns every endpoint the server exposes.
func All() []api.Endpoint {
	return []api.Endpoint{
		&HealthEndpoint{},

		// Job lifecycle
		&StartJobEndpoint{},
		&GetJobEndpoint{},
		&DownloadURLEndpoint{},
		&ArtifactEndpoint{},

		// Crawl preview
		&PreviewEndpoint{},

		// Worker internal
		&RunJobEndpoint{},
	}
}

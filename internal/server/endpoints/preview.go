package endpoints

import (
	"net/http"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/sitebookify/internal/api"
	"github.com/jackzampolin/sitebookify/internal/preview"
	"github.com/jackzampolin/sitebookify/internal/svcctx"
)

// PreviewEndpoint handles GET /api/preview?url=. It estimates page and
// chapter counts before a job is started, preferring the site's sitemap and
// falling back to a shallow link walk.
type PreviewEndpoint struct{}

func (e *PreviewEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/preview", e.handler
}

func (e *PreviewEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Preview a crawl before starting it
//	@Produce		json
//	@Param			url	query		string	true	"Start URL"
//	@Success		200	{object}	preview.Result
//	@Failure		400	{object}	ErrorResponse
//	@Router			/api/preview [get]
func (e *PreviewEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	rawURL := r.URL.Query().Get("url")
	if rawURL == "" {
		writeError(w, http.StatusBadRequest, "url query parameter is required")
		return
	}

	p := svcctx.PreviewerFrom(r.Context())
	if p == nil {
		writeError(w, http.StatusServiceUnavailable, "previewer not initialized")
		return
	}

	res, err := p.Preview(r.Context(), rawURL)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (e *PreviewEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "preview <url>",
		Short: "Estimate crawl size and cost for a start URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp preview.Result
			if err := client.Get(cmd.Context(), "/api/preview?url="+url.QueryEscape(args[0]), &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

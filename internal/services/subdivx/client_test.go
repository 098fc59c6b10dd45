package subdivx

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amaumene/subtis/internal/config"
	"github.com/amaumene/subtis/internal/parser"
	"github.com/amaumene/subtis/internal/subtitles"
)

const searchPage = `<html><body>
<div id="menu_detalle_buscador">
  <a class="titulo_menu_izq" href="/X6X111X">Subtitulos de Road House (1989)</a>
</div>
<div id="buscador_detalle">
  <div id="buscador_detalle_sub">Road House original 1080p YTS</div>
  <div id="buscador_detalle_sub_datos"><a rel="nofollow" href="/bajar.php?id=111&u=9">Descargar</a></div>
</div>
<div id="menu_detalle_buscador">
  <a class="titulo_menu_izq" href="/X6X222X">Subtitulos de Road House (2024)</a>
</div>
<div id="buscador_detalle">
  <div id="buscador_detalle_sub">Para la version 720p <b>YTS</b></div>
  <div id="buscador_detalle_sub_datos"><a rel="nofollow" href="/bajar.php?id=222&u=9">Descargar</a></div>
</div>
<div id="menu_detalle_buscador">
  <a class="titulo_menu_izq" href="/X6X333X">Subtitulos de Road House (2024)</a>
</div>
<div id="buscador_detalle">
  <div id="buscador_detalle_sub">Road.House.2024.1080p.WEBRip.x264.AAC5.1-[YTS.MX] sincronizados</div>
  <div id="buscador_detalle_sub_datos"><a rel="nofollow" href="/bajar.php?id=333&u=9">Descargar</a></div>
</div>
</body></html>`

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	client, err := NewClient(&config.Config{SubDivXBaseURL: server.URL}, logger)
	require.NoError(t, err)
	return client
}

func roadHouse(t *testing.T) *parser.MovieIdentity {
	t.Helper()
	identity, err := parser.Parse("Road.House.2024.1080p.WEBRip.x264.AAC5.1-[YTS.MX].mp4")
	require.NoError(t, err)
	return identity
}

func TestParseSearchPage(t *testing.T) {
	results, err := parseSearchPage(strings.NewReader(searchPage), "https://www.subdivx.com")
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "Subtitulos de Road House (2024)", results[1].Title)
	assert.Equal(t, "Para la version 720p YTS", results[1].Description)
	assert.Equal(t, "https://www.subdivx.com/bajar.php?id=222&u=9", results[1].DownloadLink)
}

func TestResolvePicksMatchingRelease(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/index.php", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Road House (2024)", r.URL.Query().Get("buscar2"))
		fmt.Fprint(w, searchPage)
	})
	mux.HandleFunc("/bajar.php", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "333", r.URL.Query().Get("id"))
		http.Redirect(w, r, "/sub9/333.rar", http.StatusFound)
	})
	mux.HandleFunc("/sub9/333.rar", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	client := newTestClient(t, mux)

	candidate, err := client.Resolve(context.Background(), roadHouse(t), "tt3359350")
	require.NoError(t, err)
	assert.Equal(t, subtitles.KindRar, candidate.Kind)
	assert.Equal(t, "SubDivX", candidate.SubtitleGroup)
	assert.Contains(t, candidate.SourceLink, "/sub9/333.rar")
	assert.Equal(t, "road-house-1080p-yts-subdivx.rar", candidate.CompressedFileName)
}

func TestResolveNoMatch(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><p>No encontramos resultados</p></body></html>`)
	}))

	_, err := client.Resolve(context.Background(), roadHouse(t), "")
	require.Error(t, err)
	assert.Equal(t, subtitles.NoMatch, subtitles.KindOf(err))
}

func TestResolveUpstreamError(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	_, err := client.Resolve(context.Background(), roadHouse(t), "")
	require.Error(t, err)
	assert.Equal(t, subtitles.UpstreamError, subtitles.KindOf(err))
}

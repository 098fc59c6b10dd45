package subtitles

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amaumene/subtis/internal/parser"
)

type fakeProvider struct {
	name    string
	resolve func(ctx context.Context) (*Candidate, error)
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Resolve(ctx context.Context, _ *parser.MovieIdentity, _ string) (*Candidate, error) {
	return f.resolve(ctx)
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func roadHouse(t *testing.T) *parser.MovieIdentity {
	t.Helper()
	identity, err := parser.Parse("Road.House.2024.1080p.WEBRip.x264.AAC5.1-[YTS.MX].mp4")
	require.NoError(t, err)
	return identity
}

func TestResolveAllSettlesEveryProvider(t *testing.T) {
	identity := roadHouse(t)
	want := NewCandidate(identity, "SubDivX", "http://subs/road-house.zip", KindZip)

	engine := NewEngine([]Provider{
		&fakeProvider{name: "ok", resolve: func(context.Context) (*Candidate, error) {
			return &want, nil
		}},
		&fakeProvider{name: "broken", resolve: func(context.Context) (*Candidate, error) {
			return nil, NewUpstreamError("broken", errors.New("status 502"))
		}},
		&fakeProvider{name: "stuck", resolve: func(ctx context.Context) (*Candidate, error) {
			<-ctx.Done()
			return nil, NewUpstreamError("stuck", ctx.Err())
		}},
	}, 50*time.Millisecond, quietLogger())

	start := time.Now()
	candidates := engine.ResolveAll(context.Background(), identity, "tt3359350")

	require.Len(t, candidates, 1)
	assert.Equal(t, want, candidates[0])
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestResolveAllRecoversFromPanics(t *testing.T) {
	identity := roadHouse(t)
	engine := NewEngine([]Provider{
		&fakeProvider{name: "panics", resolve: func(context.Context) (*Candidate, error) {
			panic("boom")
		}},
		&fakeProvider{name: "empty", resolve: func(context.Context) (*Candidate, error) {
			return nil, nil
		}},
	}, time.Second, quietLogger())

	assert.Empty(t, engine.ResolveAll(context.Background(), identity, ""))
	assert.Equal(t, []string{"panics", "empty"}, engine.Providers())
}

func TestNewCandidateNaming(t *testing.T) {
	c := NewCandidate(roadHouse(t), "SubDivX", "http://subs/x", KindRar)
	assert.Equal(t, "road-house-1080p-yts-subdivx", c.FileNameWithoutExtension)
	assert.Equal(t, "road-house-1080p-yts-subdivx.rar", c.CompressedFileName)
	assert.Equal(t, "road-house-1080p-yts-subdivx.srt", c.SrtFileName)
}

func TestContainerKindFromExtension(t *testing.T) {
	kind, err := ContainerKindFromExtension("https://host/sub/file.ZIP?x=1")
	require.NoError(t, err)
	assert.Equal(t, KindZip, kind)

	kind, err = ContainerKindFromExtension("a.rar")
	require.NoError(t, err)
	assert.Equal(t, KindRar, kind)

	kind, err = ContainerKindFromExtension("a.srt")
	require.NoError(t, err)
	assert.Equal(t, KindPlaintext, kind)

	_, err = ContainerKindFromExtension("a.7z")
	assert.Error(t, err)
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, NoMatch, KindOf(NewNoMatch("p", "nothing for %s", "x")))
	assert.Equal(t, UnsupportedContent, KindOf(NewUnsupportedContent("p", "tv show")))
	assert.Equal(t, UpstreamError, KindOf(errors.New("plain")))
}

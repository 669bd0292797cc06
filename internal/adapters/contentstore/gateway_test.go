package contentstore_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/pkgd/internal/adapters/contentstore"
	"go.trai.ch/pkgd/internal/adapters/kvstore"
	"go.trai.ch/pkgd/internal/core/domain"
	"go.trai.ch/pkgd/internal/core/ports/mocks"
	"go.uber.org/mock/gomock"
)

const (
	releaseCID = "QmWATWQ7fVPP2EFGu71UkfnqhYXDYH566qy47CnJDgvs8u"
	bundleCID  = "QmbundleWATWQ7fVPP2EFGu71UkfnqhYXDYH566qy47C"
)

const manifestJSON = `{
  "name": "geth.dnp.example.eth",
  "version": "1.2.0",
  "dependencies": {"bind.dnp.example.eth": "^0.2.0"},
  "image": {"hash": "/ipfs/` + bundleCID + `", "size": 11}
}`

const composeYAML = "services:\n  geth:\n    image: geth.dnp.example.eth:1.2.0\n"

type gatewayServer struct {
	*httptest.Server
	hits atomic.Int32
}

func newGatewayServer(t *testing.T, withCompose bool) *gatewayServer {
	t.Helper()
	gs := &gatewayServer{}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ipfs/"+releaseCID+"/manifest.json", func(w http.ResponseWriter, _ *http.Request) {
		gs.hits.Add(1)
		_, _ = io.WriteString(w, manifestJSON)
	})
	mux.HandleFunc("GET /ipfs/"+releaseCID+"/docker-compose.yml", func(w http.ResponseWriter, r *http.Request) {
		gs.hits.Add(1)
		if !withCompose {
			http.NotFound(w, r)
			return
		}
		_, _ = io.WriteString(w, composeYAML)
	})
	mux.HandleFunc("GET /ipfs/"+bundleCID, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "bundle-data")
	})
	mux.HandleFunc("GET /ipfs/broken", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	gs.Server = httptest.NewServer(mux)
	t.Cleanup(gs.Close)
	return gs
}

func quietLogger(ctrl *gomock.Controller) *mocks.MockLogger {
	log := mocks.NewMockLogger(ctrl)
	log.EXPECT().Warn(gomock.Any(), gomock.Any()).AnyTimes()
	log.EXPECT().Debug(gomock.Any(), gomock.Any()).AnyTimes()
	return log
}

func TestCID(t *testing.T) {
	for _, in := range []string{releaseCID, "/ipfs/" + releaseCID, "ipfs://" + releaseCID, "/ipfs/" + releaseCID + "/"} {
		assert.Equal(t, releaseCID, contentstore.CID(in), in)
	}
}

func TestGateway_Fetch(t *testing.T) {
	srv := newGatewayServer(t, true)
	gw := contentstore.NewWithClient(srv.URL, srv.Client(), nil, quietLogger(gomock.NewController(t)))

	body, size, err := gw.Fetch(context.Background(), "/ipfs/"+bundleCID)
	require.NoError(t, err)
	defer func() { _ = body.Close() }()

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "bundle-data", string(data))
	assert.Equal(t, int64(len("bundle-data")), size)
}

func TestGateway_FetchErrors(t *testing.T) {
	srv := newGatewayServer(t, true)
	gw := contentstore.NewWithClient(srv.URL, srv.Client(), nil, quietLogger(gomock.NewController(t)))

	for _, hash := range []string{"broken", "missing", ""} {
		_, _, err := gw.Fetch(context.Background(), hash)
		require.ErrorIs(t, err, domain.ErrArtifactTransfer, hash)
	}
}

func TestGateway_Release(t *testing.T) {
	srv := newGatewayServer(t, true)
	gw := contentstore.NewWithClient(srv.URL, srv.Client(), nil, quietLogger(gomock.NewController(t)))

	rel, err := gw.Release(context.Background(), "geth.dnp.example.eth",
		domain.VersionRecord{Version: "1.2.0", ContentLocator: "/ipfs/" + releaseCID})
	require.NoError(t, err)

	assert.Equal(t, "1.2.0", rel.Manifest.Version)
	assert.Equal(t, map[string]string{"bind.dnp.example.eth": "^0.2.0"}, rel.Manifest.Dependencies)
	assert.Equal(t, composeYAML, string(rel.Compose))

	src, err := rel.Manifest.ArtifactSource()
	require.NoError(t, err)
	assert.Equal(t, domain.SourceContentStore, src.Kind)
}

func TestGateway_ReleaseWithoutComposeTemplate(t *testing.T) {
	srv := newGatewayServer(t, false)
	gw := contentstore.NewWithClient(srv.URL, srv.Client(), nil, quietLogger(gomock.NewController(t)))

	rel, err := gw.Release(context.Background(), "geth.dnp.example.eth",
		domain.VersionRecord{Version: "1.2.0", ContentLocator: releaseCID})
	require.NoError(t, err)
	assert.Nil(t, rel.Compose)
}

func TestGateway_ReleaseIsCached(t *testing.T) {
	srv := newGatewayServer(t, true)
	store, err := kvstore.NewStore(t.TempDir(), 8, time.Minute)
	require.NoError(t, err)
	gw := contentstore.NewWithClient(srv.URL, srv.Client(), store, quietLogger(gomock.NewController(t)))

	rec := domain.VersionRecord{Version: "1.2.0", ContentLocator: releaseCID}
	first, err := gw.Release(context.Background(), "geth.dnp.example.eth", rec)
	require.NoError(t, err)
	second, err := gw.Release(context.Background(), "geth.dnp.example.eth", rec)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(2), srv.hits.Load(), "second call is served from the store")
}

func TestGateway_ReleaseErrors(t *testing.T) {
	srv := newGatewayServer(t, true)
	gw := contentstore.NewWithClient(srv.URL, srv.Client(), nil, quietLogger(gomock.NewController(t)))
	ctx := context.Background()

	_, err := gw.Release(ctx, "geth.dnp.example.eth", domain.VersionRecord{Version: "1.2.0"})
	require.ErrorIs(t, err, domain.ErrManifestFetchFailed, "no locator")

	_, err = gw.Release(ctx, "other.dnp.example.eth", domain.VersionRecord{Version: "1.2.0", ContentLocator: releaseCID})
	require.ErrorIs(t, err, domain.ErrManifestFetchFailed, "foreign manifest")

	_, err = gw.Release(ctx, "geth.dnp.example.eth", domain.VersionRecord{Version: "1.2.0", ContentLocator: "QmMissing"})
	require.ErrorIs(t, err, domain.ErrManifestFetchFailed, "missing manifest")
	assert.Equal(t, domain.KindTransient, domain.ErrorKind(err))
}

package wsfeed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"OFISignal/internal/domain/models"
)

func feedServer(t *testing.T, frames ...string) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for _, f := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				return
			}
		}
		// hold the connection open until the client goes away
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestDecodeFrame(t *testing.T) {
	one, err := decodeFrame([]byte(`{"seq":1,"src_ts":2.5,"price":100,"size":3}`))
	require.NoError(t, err)
	require.Len(t, one, 1)
	require.Equal(t, uint64(1), one[0].Seq)

	many, err := decodeFrame([]byte(` [{"seq":1},{"seq":2}]`))
	require.NoError(t, err)
	require.Len(t, many, 2)

	_, err = decodeFrame([]byte(`not json`))
	require.Error(t, err)
}

func TestClientReadsTicksInOrder(t *testing.T) {
	srv := feedServer(t,
		`{"seq":1,"src_ts":1700000000.0,"price":100.0,"size":10}`,
		`hello`,
		`[{"seq":2,"src_ts":1700000000.1,"price":101.0,"size":5},{"seq":3,"src_ts":1700000000.2,"price":99.0,"size":7}]`,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := New("ws"+strings.TrimPrefix(srv.URL, "http"), 10*time.Millisecond, 0, nil)
	c.now = func() time.Time { return time.Unix(1700000005, 0) }
	require.NoError(t, c.Connect(ctx))
	defer c.Close()

	ticks, errs := c.Read(ctx)
	var got []models.Tick
	deadline := time.After(2 * time.Second)
	for len(got) < 3 {
		select {
		case tk := <-ticks:
			got = append(got, tk)
		case err := <-errs:
			t.Fatalf("unexpected error: %v", err)
		case <-deadline:
			t.Fatalf("timed out with %d ticks", len(got))
		}
	}
	require.Equal(t, []uint64{1, 2, 3}, []uint64{got[0].Sequence, got[1].Sequence, got[2].Sequence})
	require.Equal(t, uint32(7), got[2].Size)
	require.Equal(t, 1700000005.0, got[0].ReceiveTimestamp)
	require.Equal(t, uint64(1), c.Dropped())
}

func TestReadWithoutConnectReportsError(t *testing.T) {
	c := New("ws://127.0.0.1:1", time.Millisecond, 0, nil)
	_, errs := c.Read(context.Background())
	require.Error(t, <-errs)
}

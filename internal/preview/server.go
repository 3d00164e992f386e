package preview

import (
	"context"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 30 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// Frames buffered per viewer before the oldest is dropped.
	viewerBuffer = 2
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 64 * 1024,
}

// Server publishes a Hub over HTTP. The index page shows every channel;
// each image is fed by a websocket at /ws?field=<name> that carries one
// binary JPEG message per frame.
type Server struct {
	hub    *Hub
	server *http.Server
	ln     net.Listener
	done   chan error
}

func NewServer(hub *Hub, addr string) *Server {
	mux := http.NewServeMux()
	s := &Server{
		hub: hub,
		server: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/ws", s.handleWebsocket)
	return s
}

// Listen binds the address and starts serving in the background.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return errors.Wrap(err, "preview server")
	}
	s.ln = ln
	s.done = make(chan error, 1)
	go func() {
		err := s.server.Serve(ln)
		if err == http.ErrServerClosed {
			err = nil
		}
		s.done <- err
	}()
	log.Info("Display at http://%s/", ln.Addr())
	return nil
}

// Addr returns the bound address, which differs from the configured one when
// port 0 was requested.
func (s *Server) Addr() string {
	if s.ln == nil {
		return s.server.Addr
	}
	return s.ln.Addr().String()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.ln == nil {
		return nil
	}
	// Closing the hub ends every viewer's write loop, which lets Shutdown
	// finish without waiting on hijacked connections.
	s.hub.Close()
	if err := s.server.Shutdown(ctx); err != nil {
		return err
	}
	return <-s.done
}

var indexTemplate = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html>
<head><title>alohacap</title>
<style>body{background:#111;color:#ccc;font-family:sans-serif} figure{display:inline-block;margin:8px} img{max-width:45vw}</style>
</head>
<body>
{{range .}}<figure><img id="{{.}}"><figcaption>{{.}}</figcaption></figure>
{{end}}<script>
for (const img of document.querySelectorAll("img")) {
  const ws = new WebSocket("ws://" + location.host + "/ws?field=" + img.id);
  ws.binaryType = "blob";
  ws.onmessage = (ev) => {
    const old = img.src;
    img.src = URL.createObjectURL(ev.data);
    if (old) URL.revokeObjectURL(old);
  };
}
</script>
</body>
</html>
`))

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexTemplate.Execute(w, s.hub.Channels()); err != nil {
		log.Warn("index: %v", err)
	}
}

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	field := r.URL.Query().Get("field")
	frames, err := s.hub.Subscribe(field, viewerBuffer)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	defer s.hub.Unsubscribe(field, frames)

	// Upgrade websocket connection
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("upgrade: %v", err)
		return
	}
	defer ws.Close()

	log.Debug("Viewer %s watching %s", r.RemoteAddr, field)
	closed := make(chan struct{})
	go readLoop(ws, closed)

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case data, ok := <-frames:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				ws.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "recording finished"))
				return
			}
			if err := ws.WriteMessage(websocket.BinaryMessage, data); err != nil {
				log.Debug("Viewer %s: %v", r.RemoteAddr, err)
				return
			}
		case <-ticker.C:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-closed:
			log.Debug("Viewer %s left %s", r.RemoteAddr, field)
			return
		}
	}
}

// readLoop handles pongs and close frames. Viewers send nothing else.
func readLoop(ws *websocket.Conn, closed chan<- struct{}) {
	defer close(closed)
	ws.SetReadLimit(512)
	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug("websocket read: %v", err)
			}
			return
		}
	}
}

func (s *Server) String() string {
	return fmt.Sprintf("preview server on %s", s.Addr())
}

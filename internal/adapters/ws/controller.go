// Package ws adapts the websocket transport to the chat coordinator:
// one read/write pump pair per connection, tagged JSON envelopes in,
// event broadcasts and seq-correlated acks out.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/bryceweiner/chat-server/internal/app"
	"github.com/bryceweiner/chat-server/internal/core"
)

const sendBuffer = 32

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type Controller struct {
	Coord    *app.Coordinator
	validate *validator.Validate
}

func NewController(coord *app.Coordinator) *Controller {
	return &Controller{
		Coord:    coord,
		validate: validator.New(),
	}
}

// connState is owned by the read pump; no other goroutine touches it.
type connState struct {
	cid    core.ConnID
	conn   *Conn
	authed bool
	sess   *app.Session
}

func (ctl *Controller) Handle(ctx context.Context, c *gin.Context) {
	wsock, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.ws").Msg("ws upgrade")
		return
	}

	cid := core.ConnID(uuid.NewString())
	conn := newConn(wsock, sendBuffer)
	ctl.Coord.Connect(cid, conn)
	log.Info().Str("module", "adapters.ws").Str("cid", string(cid)).Str("client_token", c.GetString("client_token")).Msg("new WS connection")

	ctx, cancel := context.WithCancel(ctx)
	go func() {
		ctl.writePump(ctx, conn)
		cancel()
	}()
	go func() {
		ctl.readPump(ctx, &connState{cid: cid, conn: conn})
		cancel()
	}()
}

func (ctl *Controller) writePump(ctx context.Context, c *Conn) {
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				log.Error().Err(err).Str("module", "adapters.ws").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "adapters.ws").Msg("writePump write error")
				return
			}
		}
	}
}

func (ctl *Controller) readPump(ctx context.Context, st *connState) {
	defer func() {
		log.Info().Str("module", "adapters.ws").Str("cid", string(st.cid)).Msg("readPump closing")
		ctl.Coord.Disconnect(st.cid)
		st.conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := st.conn.conn.ReadMessage()
			if err != nil {
				log.Debug().Err(err).Str("module", "adapters.ws").Str("cid", string(st.cid)).Msg("readPump read error")
				return
			}
			ctl.handleEvent(ctx, st, data)
		}
	}
}

func (ctl *Controller) handleEvent(ctx context.Context, st *connState, data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Err(err).Str("module", "adapters.ws").Str("cid", string(st.cid)).Msg("bad json")
		return
	}

	switch env.Type {
	case "auth":
		ctl.handleAuth(ctx, st, env)
	case "new_message":
		ctl.handleNewMessage(st, env)
	default:
		log.Warn().Str("module", "adapters.ws").Str("type", env.Type).Msg("unknown event")
	}
}

// handleAuth accepts the first auth event on a connection; anything
// after that is dropped, whether or not the first one validated.
func (ctl *Controller) handleAuth(ctx context.Context, st *connState, env envelope) {
	if st.authed {
		log.Debug().Str("module", "adapters.ws").Str("cid", string(st.cid)).Msg("repeat auth ignored")
		return
	}
	st.authed = true

	if len(env.Data) == 0 {
		ctl.clientError(st, "must send data object with `auth` event")
		return
	}
	var p authPayload
	if err := json.Unmarshal(env.Data, &p); err != nil {
		ctl.clientError(st, "must send data object with `auth` event")
		return
	}
	if err := ctl.validate.Struct(p); err != nil {
		ctl.clientError(st, "must send app_id integer with `auth` event")
		return
	}
	seq, present, ok := parseSeq(env.Seq)
	if !present || !ok {
		ctl.clientError(st, "must provide callback to `auth` event")
		return
	}

	ack := func(code string, payload any) {
		if err := st.conn.sendAck(seq, code, payload); err != nil {
			log.Warn().Err(err).Str("module", "adapters.ws").Str("cid", string(st.cid)).Msg("auth ack drop")
		}
	}
	st.sess = ctl.Coord.Authenticate(ctx, st.cid, st.conn, *p.AppID, p.tokenHash(), ack)
}

func (ctl *Controller) handleNewMessage(st *connState, env envelope) {
	if st.sess == nil {
		log.Debug().Str("module", "adapters.ws").Str("cid", string(st.cid)).Msg("new_message before auth ignored")
		return
	}

	var raw any
	if len(env.Text) > 0 {
		// a decode failure leaves raw untyped; the pipeline rejects it
		_ = json.Unmarshal(env.Text, &raw)
	}

	seq, present, ok := parseSeq(env.Seq)
	var ack app.Ack
	if present && ok {
		ack = func(code string, payload any) {
			if err := st.conn.sendAck(seq, code, payload); err != nil {
				log.Warn().Err(err).Str("module", "adapters.ws").Str("cid", string(st.cid)).Msg("ack drop")
			}
		}
	}
	st.sess.Admit(raw, ack, present && !ok)
}

func (ctl *Controller) clientError(st *connState, msg string) {
	if err := st.conn.TrySend("client_error", msg); err != nil {
		log.Warn().Err(err).Str("module", "adapters.ws").Str("cid", string(st.cid)).Msg("client_error drop")
	}
}

package websocket

import (
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait = 10 * time.Second
	readWait  = 5 * time.Minute
)

// WriteResponse sends a response frame with a write deadline.
func WriteResponse(conn *websocket.Conn, r Response) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(r)
}

// WriteError sends an error frame.
func WriteError(conn *websocket.Conn, ref, code, msg string) error {
	return WriteResponse(conn, Error(ref, code, msg))
}

// ReadRequest reads and decodes the next client frame.
// It sets a read deadline.
func ReadRequest(conn *websocket.Conn) (Request, error) {
	var req Request
	conn.SetReadDeadline(time.Now().Add(readWait))
	err := conn.ReadJSON(&req)
	return req, err
}

// ReadResponse reads the next server frame on a client connection.
func ReadResponse(conn *websocket.Conn) (Response, error) {
	var res Response
	err := conn.ReadJSON(&res)
	return res, err
}

// WriteRequest sends a client frame with a write deadline.
func WriteRequest(conn *websocket.Conn, r Request) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(r)
}

// Package api is a small REST client for the exchange endpoints a stream
// needs before it can open a socket.
//
// KIS:
//   - Production: https://openapi.koreainvestment.com:9443
//   - Paper trading: https://openapivts.koreainvestment.com:29443
//
// POST /oauth2/Approval exchanges an app key and secret for the websocket
// approval key sent in every subscribe frame.
package api

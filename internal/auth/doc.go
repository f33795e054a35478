// Package auth mints and verifies the signed bearer tokens handed out at
// login. A verified token is only half of authentication: the session
// ledger in services/auth decides whether the token is still honoured.
package auth

package middleware

import "errors"

var errRevoked = errors.New("token revogado")

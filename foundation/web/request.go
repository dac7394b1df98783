package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/ancourn/kaldr1-sub002/foundation/validate"
	"github.com/dimfeld/httptreemux/v5"
)

// Param returns the web call parameters from the request.
func Param(r *http.Request, key string) string {
	m := httptreemux.ContextParams(r.Context())
	return m[key]
}

// ParamUint returns a web call parameter parsed as an unsigned integer.
func ParamUint(r *http.Request, key string) (uint64, error) {
	value, err := strconv.ParseUint(Param(r, key), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parameter %q is not a number: %w", key, err)
	}

	return value, nil
}

// Decode reads the body of an HTTP request looking for a JSON document. The
// body is decoded into the provided value. The value is then checked against
// any validate tags it declares.
func Decode(r *http.Request, val any) error {
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(val); err != nil {
		return fmt.Errorf("unable to decode payload: %w", err)
	}

	if err := validate.Check(val); err != nil {
		return err
	}

	return nil
}

package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"

	"github.com/berry-13/vicsam-group-sub002/internal/domain"
	"github.com/berry-13/vicsam-group-sub002/internal/service"
)

const maxBodyBytes = 1 << 20

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return domain.NewError(domain.CodeInvalidInput, "request body is required", nil)
		}
		return domain.NewError(domain.CodeInvalidInput, "malformed request body", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return domain.NewError(domain.CodeInvalidInput, "unexpected data after JSON body", err)
	}
	return nil
}

func requestMetadata(r *http.Request) service.Metadata {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		ip = host
	}
	return service.Metadata{IP: ip, UserAgent: r.UserAgent()}
}

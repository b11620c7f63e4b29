package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// maxRequestBody caps request bodies for both protobuf and JSON payloads.
const maxRequestBody = 64 << 10

const protobufType = "application/x-protobuf"

func isProtoType(ct string) bool {
	ct, _, _ = strings.Cut(ct, ";")
	switch strings.TrimSpace(ct) {
	case protobufType, "application/protobuf", "application/octet-stream":
		return true
	}
	return false
}

// isProtobuf reports whether the request body is a protobuf Struct.
func isProtobuf(r *http.Request) bool {
	return isProtoType(r.Header.Get("Content-Type"))
}

// wantsProtobuf reports whether the client asked for a protobuf response.
func wantsProtobuf(r *http.Request) bool {
	for _, part := range strings.Split(r.Header.Get("Accept"), ",") {
		if isProtoType(part) {
			return true
		}
	}
	return false
}

// readProto decodes a google.protobuf.Struct body into dst by way of its
// canonical JSON form, so both encodings share one set of field names.
func readProto(r *http.Request, dst any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		return err
	}
	var st structpb.Struct
	if err := proto.Unmarshal(body, &st); err != nil {
		return err
	}
	js, err := protojson.Marshal(&st)
	if err != nil {
		return err
	}
	return decodeStrict(strings.NewReader(string(js)), dst)
}

// writeProto encodes v as a google.protobuf.Value.
func writeProto(w http.ResponseWriter, status int, v any) {
	js, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "json marshal error", http.StatusInternalServerError)
		return
	}
	var val structpb.Value
	if err := protojson.Unmarshal(js, &val); err != nil {
		http.Error(w, "proto convert error", http.StatusInternalServerError)
		return
	}
	data, err := proto.Marshal(&val)
	if err != nil {
		http.Error(w, "proto marshal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", protobufType)
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

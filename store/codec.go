package store

import (
	"encoding/json"

	"github.com/michaellenahan/amazon-product-widget/product"
)

func encodeEntry(e *product.Entry) ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, ErrCodec(e.Key, err)
	}
	return data, nil
}

func decodeEntry(data []byte) (*product.Entry, error) {
	var e product.Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, ErrCodec("", err)
	}
	return &e, nil
}

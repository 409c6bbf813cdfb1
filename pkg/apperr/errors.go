package apperr

import (
	"errors"
	"fmt"
)

// Kind はエラーの分類です。呼び出し側はメッセージではなく Kind で分岐します。
type Kind string

const (
	KindValidation   Kind = "validation"
	KindCredential   Kind = "credential"
	KindKeySelection Kind = "key_selection"
	KindLimit        Kind = "limit"
	KindNoImage      Kind = "no_image"
	KindNotFound     Kind = "not_found"
	KindUnauthorized Kind = "unauthorized"
	KindForbidden    Kind = "forbidden"
	KindUpstream     Kind = "upstream"
)

// Error は分類付きのアプリケーションエラーなのだ。
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

// Error は error インターフェースを実装します。
func (e *Error) Error() string {
	if e.Err != nil && e.Message != "" {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

// Unwrap は元のエラーを返します。
func (e *Error) Unwrap() error {
	return e.Err
}

// New は Kind とメッセージ、元エラーから Error を生成します。
func New(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func Validation(message string) *Error {
	return New(KindValidation, message, nil)
}

func Credential(message string, err error) *Error {
	return New(KindCredential, message, err)
}

func KeySelection(message string, err error) *Error {
	return New(KindKeySelection, message, err)
}

func Limit(message string, err error) *Error {
	return New(KindLimit, message, err)
}

func NoImage(message string) *Error {
	return New(KindNoImage, message, nil)
}

func NotFound(message string) *Error {
	return New(KindNotFound, message, nil)
}

func Unauthorized(message string, err error) *Error {
	return New(KindUnauthorized, message, err)
}

func Forbidden(message string) *Error {
	return New(KindForbidden, message, nil)
}

func Upstream(message string, err error) *Error {
	return New(KindUpstream, message, err)
}

// KindOf はエラーチェーンから Kind を取り出します。分類がなければ KindUpstream です。
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindUpstream
}

// Is はエラーが指定の Kind かどうかを判定するのだ。
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Message はユーザーに見せるメッセージを返します。
// 分類付きエラーならそのメッセージ、そうでなければ err.Error() なのだ。
func Message(err error) string {
	if err == nil {
		return ""
	}
	var appErr *Error
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}
	return err.Error()
}

package response

import (
	"context"
	"errors"
	"net/http"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/mbeoliero/tradechat/pkg/errcode"
)

// Response represents a standard API response
type Response struct {
	Code int         `json:"code"`
	Msg  string      `json:"msg"`
	Data interface{} `json:"data,omitempty"`
}

// Success sends a success response
func Success(ctx context.Context, c *app.RequestContext, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code: errcode.ErrSuccess.Code,
		Msg:  errcode.ErrSuccess.Msg,
		Data: data,
	})
}

// Created sends a 201 response for a newly created resource
func Created(ctx context.Context, c *app.RequestContext, data interface{}) {
	c.JSON(http.StatusCreated, Response{
		Code: errcode.ErrSuccess.Code,
		Msg:  errcode.ErrSuccess.Msg,
		Data: data,
	})
}

// Error sends an error response, using the HTTP status carried by the error code
func Error(ctx context.Context, c *app.RequestContext, err error) {
	var e *errcode.Error
	if !errors.As(err, &e) {
		e = errcode.ErrInternalServer
	}
	ErrorWithCode(ctx, c, e)
}

// ErrorWithCode sends an error response with specific error code
func ErrorWithCode(ctx context.Context, c *app.RequestContext, e *errcode.Error) {
	c.JSON(e.Status(), Response{
		Code: e.Code,
		Msg:  e.Msg,
	})
}

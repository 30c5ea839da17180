package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/guttosm/rental-manager/internal/domain/dto"
	"github.com/guttosm/rental-manager/internal/middleware"
	"github.com/guttosm/rental-manager/internal/objpool"
)

// ResponsePools recycles response envelopes. They are bounded object pools
// so the memory monitor can drain them.
type ResponsePools struct {
	success *objpool.Pool[*dto.SuccessResponse]
	errors  *objpool.Pool[*dto.ErrorResponse]
}

// NewResponsePools creates envelope pools holding up to capacity idle
// objects each.
func NewResponsePools(capacity int) *ResponsePools {
	return &ResponsePools{
		success: objpool.New(objpool.Config[*dto.SuccessResponse]{
			Name:     "http_success_responses",
			Capacity: capacity,
			New:      func() *dto.SuccessResponse { return &dto.SuccessResponse{} },
			Reset:    func(r *dto.SuccessResponse) { *r = dto.SuccessResponse{} },
		}),
		errors: objpool.New(objpool.Config[*dto.ErrorResponse]{
			Name:     "http_error_responses",
			Capacity: capacity,
			New:      func() *dto.ErrorResponse { return &dto.ErrorResponse{} },
			Reset:    func(r *dto.ErrorResponse) { *r = dto.ErrorResponse{} },
		}),
	}
}

// Stats returns both pools' statistics.
func (p *ResponsePools) Stats() []objpool.Stats {
	return []objpool.Stats{p.success.Stats(), p.errors.Stats()}
}

// Drain drops idle envelopes and returns how many were dropped.
func (p *ResponsePools) Drain() int {
	return p.success.Drain() + p.errors.Drain()
}

// ResponseBuilder writes dto envelopes for one request.
type ResponseBuilder struct {
	c     *gin.Context
	pools *ResponsePools
}

// NewResponseBuilder creates a new response builder for the given context.
func NewResponseBuilder(c *gin.Context, pools *ResponsePools) *ResponseBuilder {
	return &ResponseBuilder{c: c, pools: pools}
}

// Success sends data wrapped in a dto.SuccessResponse.
func (b *ResponseBuilder) Success(statusCode int, data interface{}) {
	resp := b.pools.success.Get()
	resp.Data = data
	resp.RequestID = middleware.GetRequestID(b.c)
	resp.Timestamp = time.Now()

	// gin serializes synchronously, so the envelope is free again afterwards.
	b.c.JSON(statusCode, resp)
	b.pools.success.Put(resp)
}

// SuccessOK sends a 200 OK response with the given data.
func (b *ResponseBuilder) SuccessOK(data interface{}) {
	b.Success(http.StatusOK, data)
}

// Error aborts with a dto.ErrorResponse. A non-nil err is attached to the
// gin context for the error handler to log.
func (b *ResponseBuilder) Error(statusCode int, message string, err error) {
	resp := b.pools.errors.Get()
	resp.Error = dto.ErrCodeFromStatus(statusCode)
	resp.Message = message
	resp.RequestID = middleware.GetRequestID(b.c)
	resp.Timestamp = time.Now()

	if err != nil {
		_ = b.c.Error(err)
	}

	b.c.AbortWithStatusJSON(statusCode, resp)
	b.pools.errors.Put(resp)
}

// Validator interface for types that can validate themselves.
type Validator interface {
	Validate() error
}

// BuildRequestAndValidate binds the JSON body into a T and validates it if it
// implements Validator.
func BuildRequestAndValidate[T any](c *gin.Context) (*T, error) {
	var req T
	if err := c.ShouldBindJSON(&req); err != nil {
		return nil, err
	}
	if v, ok := any(&req).(Validator); ok {
		if err := v.Validate(); err != nil {
			return nil, err
		}
	}
	return &req, nil
}

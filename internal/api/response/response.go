package response

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Machine-readable failure kinds. Clients branch on these, never on the
// human-readable message.
const (
	KindBadCode     = "BAD_CODE"
	KindCodeExpired = "CODE_EXPIRED"
	KindCodeLimit   = "CODE_LIMIT"
	KindNoToken     = "NO_TOKEN"
	KindNoCode      = "NO_CODE"
)

type Error struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type Pagination struct {
	Limit  int32 `json:"limit"`
	Offset int32 `json:"offset"`
	Total  int64 `json:"total"`
}

type Page struct {
	Items      any        `json:"items"`
	Pagination Pagination `json:"pagination"`
}

func Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, data)
}

func Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, data)
}

func Paginated(c *gin.Context, items any, limit, offset int32, total int64) {
	c.JSON(http.StatusOK, Page{
		Items: items,
		Pagination: Pagination{
			Limit:  limit,
			Offset: offset,
			Total:  total,
		},
	})
}

func Fail(c *gin.Context, httpStatus int, kind, message string) {
	c.AbortWithStatusJSON(httpStatus, Error{
		Error:   kind,
		Message: message,
	})
}

// FailStatus covers errors with no domain kind of their own; the kind is
// derived from the HTTP status so clients always have something to branch on.
func FailStatus(c *gin.Context, httpStatus int, message string) {
	Fail(c, httpStatus, fmt.Sprintf("HTTP_%d", httpStatus), message)
}

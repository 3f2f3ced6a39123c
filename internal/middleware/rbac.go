package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-cbt/internal/model"
	"github.com/stemsi/exstem-cbt/internal/response"
)

// RequireStudent admits student principals only.
func RequireStudent() gin.HandlerFunc {
	return requireRole(response.ErrStudentAccessOnly, model.RoleStudent)
}

// RequireStaff admits teachers and admins.
func RequireStaff() gin.HandlerFunc {
	return requireRole(response.ErrStaffAccessOnly, model.RoleTeacher, model.RoleAdmin)
}

func requireRole(code response.ErrCode, roles ...model.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := GetPrincipal(c)
		if !ok {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}

		for _, r := range roles {
			if p.Role == r {
				c.Next()
				return
			}
		}

		response.AbortFail(c, http.StatusForbidden, code)
	}
}

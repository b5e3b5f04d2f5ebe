package fake

import (
	"net/http"
	"sort"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	contaconmigo "github.com/contaconmigo/contaconmigo-go"
)

func (s *Server) routes() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(gin.Recovery(), s.record())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	a := r.Group("/auth")
	a.POST("/signup", s.signUp)
	a.POST("/login", s.login)
	a.POST("/logout", s.logout)
	a.POST("/forgot-password", s.forgotPassword)
	a.POST("/reset-password", s.resetPassword)

	t := r.Group("/templates", s.auth())
	t.GET("", s.listTemplates)
	t.POST("", s.createTemplate)
	t.GET("/:id", s.getTemplate)
	t.PUT("/:id", s.updateTemplate)
	t.DELETE("/:id", s.deleteTemplate)
	t.POST("/:id/data", s.submitEntry)
	t.GET("/:id/data", s.listEntries)
	t.GET("/:id/data/:entry", s.getEntry)
	t.PUT("/:id/data/:entry", s.updateEntry)
	t.DELETE("/:id/data/:entry", s.deleteEntry)

	return r
}

type credentials struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

func (s *Server) signUp(c *gin.Context) {
	var req credentials
	if err := c.ShouldBindJSON(&req); err != nil {
		detail(c, http.StatusUnprocessableEntity, err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[req.Email]; exists {
		detail(c, http.StatusBadRequest, "User already registered")
		return
	}
	acc := &account{id: uuid.NewString(), email: req.Email, password: req.Password}
	s.users[req.Email] = acc

	c.JSON(http.StatusOK, gin.H{"message": "User created successfully", "user_id": acc.id})
}

func (s *Server) login(c *gin.Context) {
	var req credentials
	if err := c.ShouldBindJSON(&req); err != nil {
		detail(c, http.StatusUnprocessableEntity, err.Error())
		return
	}

	s.mu.RLock()
	acc, ok := s.users[req.Email]
	s.mu.RUnlock()
	if !ok || acc.password != req.Password {
		detail(c, http.StatusUnauthorized, "Invalid login credentials")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":       "Login successful",
		"access_token":  s.IssueToken(acc.id, acc.email, s.ttl),
		"refresh_token": uuid.NewString(),
		"user": gin.H{
			"id":            acc.id,
			"email":         acc.email,
			"user_metadata": acc.metadata,
		},
	})
}

// logout revokes the presented token when there is one.
func (s *Server) logout(c *gin.Context) {
	if tok := extractBearerToken(c.Request); tok != "" {
		s.Revoke(tok)
	}
	c.JSON(http.StatusOK, gin.H{"message": "Logged out successfully"})
}

func (s *Server) forgotPassword(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required,email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		detail(c, http.StatusUnprocessableEntity, err.Error())
		return
	}
	// Unknown addresses get the same answer.
	c.JSON(http.StatusOK, gin.H{"message": "Password reset email sent"})
}

func (s *Server) resetPassword(c *gin.Context) {
	var req struct {
		AccessToken string `json:"access_token" binding:"required"`
		NewPassword string `json:"new_password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		detail(c, http.StatusUnprocessableEntity, err.Error())
		return
	}
	claims, err := s.verify(req.AccessToken)
	if err != nil {
		detail(c, http.StatusUnauthorized, err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, acc := range s.users {
		if acc.id == claims.Subject {
			acc.password = req.NewPassword
			c.JSON(http.StatusOK, gin.H{"message": "Password updated successfully"})
			return
		}
	}
	detail(c, http.StatusNotFound, "User not found")
}

type templateBody struct {
	Name   string               `json:"name" binding:"required"`
	Fields []contaconmigo.Field `json:"fields" binding:"required,min=1"`
}

func (s *Server) listTemplates(c *gin.Context) {
	userID := GetUserID(c)

	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]contaconmigo.Template, 0)
	for _, id := range s.order {
		if t, ok := s.templates[id]; ok && t.UserID == userID {
			out = append(out, *t)
		}
	}
	c.JSON(http.StatusOK, gin.H{"templates": out})
}

func (s *Server) createTemplate(c *gin.Context) {
	var req templateBody
	if err := c.ShouldBindJSON(&req); err != nil {
		detail(c, http.StatusUnprocessableEntity, err.Error())
		return
	}

	now := s.now().UTC()
	t := &contaconmigo.Template{
		ID:        uuid.NewString(),
		Name:      req.Name,
		UserID:    GetUserID(c),
		Fields:    req.Fields,
		CreatedAt: &now,
		UpdatedAt: &now,
	}

	s.mu.Lock()
	s.templates[t.ID] = t
	s.order = append(s.order, t.ID)
	s.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{"message": "Template created successfully", "template_id": t.ID})
}

// owned returns the caller's template or aborts with 404. The caller must
// hold s.mu.
func (s *Server) owned(c *gin.Context) *contaconmigo.Template {
	t, ok := s.templates[c.Param("id")]
	if !ok || t.UserID != GetUserID(c) {
		detail(c, http.StatusNotFound, "Template not found")
		return nil
	}
	return t
}

func (s *Server) getTemplate(c *gin.Context) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t := s.owned(c)
	if t == nil {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"template_id": t.ID,
		"name":        t.Name,
		"user_id":     t.UserID,
		"fields":      t.Fields,
		"created_at":  t.CreatedAt,
		"updated_at":  t.UpdatedAt,
	})
}

func (s *Server) updateTemplate(c *gin.Context) {
	var req templateBody
	if err := c.ShouldBindJSON(&req); err != nil {
		detail(c, http.StatusUnprocessableEntity, err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.owned(c)
	if t == nil {
		return
	}
	now := s.now().UTC()
	t.Name = req.Name
	t.Fields = req.Fields
	t.UpdatedAt = &now
	c.JSON(http.StatusOK, gin.H{"message": "Template updated successfully"})
}

func (s *Server) deleteTemplate(c *gin.Context) {
	force, _ := strconv.ParseBool(c.Query("force"))

	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.owned(c)
	if t == nil {
		return
	}
	if n := len(s.entries[t.ID]); n > 0 && !force {
		detail(c, http.StatusBadRequest, "Template has "+strconv.Itoa(n)+" entries; use force=true to delete them")
		return
	}
	delete(s.templates, t.ID)
	delete(s.entries, t.ID)
	for i, id := range s.order {
		if id == t.ID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	c.JSON(http.StatusOK, gin.H{"message": "Template deleted successfully"})
}

type valuesBody struct {
	Values map[string]any `json:"values" binding:"required"`
}

// checkValues rejects values naming fields the template does not have or
// missing one it has.
func checkValues(c *gin.Context, t *contaconmigo.Template, values map[string]any) bool {
	known := make(map[string]bool, len(t.Fields))
	for _, f := range t.Fields {
		known[f.Name] = true
		if _, ok := values[f.Name]; !ok {
			detail(c, http.StatusBadRequest, "Missing value for field: "+f.Name)
			return false
		}
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if !known[k] {
			detail(c, http.StatusBadRequest, "Unknown field: "+k)
			return false
		}
	}
	return true
}

func (s *Server) submitEntry(c *gin.Context) {
	var req valuesBody
	if err := c.ShouldBindJSON(&req); err != nil {
		detail(c, http.StatusUnprocessableEntity, err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.owned(c)
	if t == nil || !checkValues(c, t, req.Values) {
		return
	}
	e := &contaconmigo.Entry{
		ID:         uuid.NewString(),
		TemplateID: t.ID,
		Values:     req.Values,
		CreatedAt:  s.now().UTC(),
	}
	s.entries[t.ID] = append(s.entries[t.ID], e)
	c.JSON(http.StatusOK, gin.H{"message": "Data submitted successfully", "entry_id": e.ID})
}

func (s *Server) listEntries(c *gin.Context) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t := s.owned(c)
	if t == nil {
		return
	}
	out := make([]contaconmigo.Entry, 0, len(s.entries[t.ID]))
	for _, e := range s.entries[t.ID] {
		out = append(out, *e)
	}
	c.JSON(http.StatusOK, gin.H{"entries": out})
}

// entry returns the requested entry or aborts with 404. The caller must
// hold s.mu.
func (s *Server) entry(c *gin.Context) (*contaconmigo.Template, int) {
	t := s.owned(c)
	if t == nil {
		return nil, -1
	}
	for i, e := range s.entries[t.ID] {
		if e.ID == c.Param("entry") {
			return t, i
		}
	}
	detail(c, http.StatusNotFound, "Entry not found")
	return nil, -1
}

func (s *Server) getEntry(c *gin.Context) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, i := s.entry(c)
	if t == nil {
		return
	}
	c.JSON(http.StatusOK, s.entries[t.ID][i])
}

func (s *Server) updateEntry(c *gin.Context) {
	var req valuesBody
	if err := c.ShouldBindJSON(&req); err != nil {
		detail(c, http.StatusUnprocessableEntity, err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	t, i := s.entry(c)
	if t == nil || !checkValues(c, t, req.Values) {
		return
	}
	s.entries[t.ID][i].Values = req.Values
	c.JSON(http.StatusOK, gin.H{"message": "Entry updated successfully"})
}

func (s *Server) deleteEntry(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, i := s.entry(c)
	if t == nil {
		return
	}
	list := s.entries[t.ID]
	s.entries[t.ID] = append(list[:i], list[i+1:]...)
	c.JSON(http.StatusOK, gin.H{"message": "Entry deleted successfully"})
}

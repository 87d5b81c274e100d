package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tidewell/agenthub/conversation"
	"github.com/tidewell/agenthub/core"
	"github.com/tidewell/agenthub/registry"
	"github.com/tidewell/agenthub/workflow"
)

// errorBody is the uniform error envelope.
type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func newErrorBody(code, message string) errorBody {
	var b errorBody
	b.Error.Code = code
	b.Error.Message = message
	return b
}

// statusFor maps coded errors onto HTTP status codes.
func statusFor(code core.ErrorCode) int {
	switch code {
	case core.CodeNotFound:
		return http.StatusNotFound
	case core.CodeAlreadyExists, core.CodeCyclicDependency, core.CodeCancelled:
		return http.StatusBadRequest
	case core.CodeAgentUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(c *gin.Context, err error) {
	code := core.CodeOf(err)
	c.JSON(statusFor(code), newErrorBody(string(code), err.Error()))
}

func (s *Server) writeBindError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, newErrorBody("INVALID_REQUEST", err.Error()))
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "message": "agent hub operational"})
}

func (s *Server) handleListAgents(c *gin.Context) {
	f := registry.Filter{
		Type:     core.AgentType(c.Query("agent_type")),
		Provider: c.Query("provider"),
		Role:     c.Query("role"),
		Domain:   c.Query("domain"),
	}
	if caps := c.Query("capabilities"); caps != "" {
		for _, tag := range strings.Split(caps, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				f.Capabilities = append(f.Capabilities, tag)
			}
		}
	}
	if v := c.Query("available_only"); v != "" {
		only, err := strconv.ParseBool(v)
		if err != nil {
			s.writeBindError(c, err)
			return
		}
		f.AvailableOnly = only
	}
	c.JSON(http.StatusOK, s.hub.Registry().List(f))
}

type registerAgentRequest struct {
	core.Agent
	ProviderConfig map[string]any `json:"provider_config,omitempty"`
}

func (s *Server) handleRegisterAgent(c *gin.Context) {
	var req registerAgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeBindError(c, err)
		return
	}
	id, err := s.hub.RegisterAgent(req.Agent, req.ProviderConfig)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"agent_id": id, "agent_type": req.Agent.Type})
}

func (s *Server) handleRemoveAgent(c *gin.Context) {
	if err := s.hub.Registry().Remove(c.Param("id")); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": c.Param("id")})
}

func (s *Server) handleHeartbeat(c *gin.Context) {
	if err := s.hub.Registry().Heartbeat(c.Param("id")); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"agent_id": c.Param("id"), "status": "alive"})
}

type directMessageRequest struct {
	Message string         `json:"message" binding:"required"`
	Context map[string]any `json:"context,omitempty"`
}

func (s *Server) handleDirectMessage(c *gin.Context) {
	var req directMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeBindError(c, err)
		return
	}
	agentID := c.Param("id")
	payload := map[string]any{"message": req.Message}
	if req.Context != nil {
		payload["context"] = req.Context
	}
	taskID, err := s.hub.Tasks().Create(agentID, payload)
	if err != nil {
		s.writeError(c, err)
		return
	}
	res, err := s.hub.Tasks().Execute(c.Request.Context(), taskID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	if res.Error != "" {
		s.writeError(c, core.NewError(core.CodeInvocationFailure, "agent %s failed: %s", agentID, res.Error))
		return
	}
	c.JSON(http.StatusOK, gin.H{"agent": agentID, "response": res.Output, "task_id": taskID})
}

type initConversationRequest struct {
	ConversationID string         `json:"conversation_id,omitempty"`
	Context        map[string]any `json:"context,omitempty"`
}

func (s *Server) handleInitConversation(c *gin.Context) {
	var req initConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeBindError(c, err)
		return
	}
	conv, err := s.hub.Conversations().Initialize(req.ConversationID, req.Context)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

type processMessageRequest struct {
	ConversationID string                      `json:"conversation_id" binding:"required"`
	Message        string                      `json:"message" binding:"required"`
	Options        conversation.ProcessOptions `json:"options"`
}

func (s *Server) handleProcessMessage(c *gin.Context) {
	var req processMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeBindError(c, err)
		return
	}
	reply, err := s.hub.Conversations().ProcessMessage(c.Request.Context(), req.ConversationID, req.Message, req.Options)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, reply)
}

type multiAgentRequest struct {
	ConversationID string                         `json:"conversation_id,omitempty"`
	Agents         []string                       `json:"agents" binding:"required"`
	Options        conversation.MultiAgentOptions `json:"options"`
}

func (s *Server) handleMultiAgent(c *gin.Context) {
	var req multiAgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeBindError(c, err)
		return
	}
	conv, err := s.hub.Conversations().CreateMultiAgent(req.ConversationID, req.Agents, req.Options)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

func (s *Server) handleGetConversation(c *gin.Context) {
	conv, err := s.hub.Conversations().Get(c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

func (s *Server) handleCloseConversation(c *gin.Context) {
	if err := s.hub.Conversations().Close(c.Param("id")); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversation_id": c.Param("id"), "state": core.ConversationClosed})
}

type createTaskRequest struct {
	AgentID string `json:"agent_id" binding:"required"`
	Payload any    `json:"payload"`
}

func (s *Server) handleCreateTask(c *gin.Context) {
	var req createTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeBindError(c, err)
		return
	}
	id, err := s.hub.Tasks().Create(req.AgentID, req.Payload)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"task_id": id})
}

func (s *Server) handleGetTask(c *gin.Context) {
	t, err := s.hub.Tasks().Get(c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (s *Server) handleExecuteTask(c *gin.Context) {
	if async, _ := strconv.ParseBool(c.Query("async")); async {
		if err := s.hub.Tasks().ExecuteAsync(c.Param("id")); err != nil {
			s.writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"task_id": c.Param("id"), "status": core.TaskQueued})
		return
	}
	res, err := s.hub.Tasks().Execute(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": res.Error == "", "result": res})
}

func (s *Server) handleCancelTask(c *gin.Context) {
	if err := s.hub.Tasks().Cancel(c.Param("id")); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"task_id": c.Param("id"), "cancelled": true})
}

type createWorkflowRequest struct {
	WorkflowID string          `json:"workflow_id,omitempty"`
	Tasks      []core.TaskSpec `json:"tasks" binding:"required"`
	Options    struct {
		Policy workflow.FailurePolicy `json:"policy,omitempty"`
	} `json:"options"`
}

func (s *Server) handleCreateWorkflow(c *gin.Context) {
	var req createWorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeBindError(c, err)
		return
	}
	id, err := s.createWorkflow(req)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"workflow_id": id})
}

func (s *Server) createWorkflow(req createWorkflowRequest) (string, error) {
	var optFns []func(o *workflow.CreateOptions)
	if req.Options.Policy != "" {
		optFns = append(optFns, func(o *workflow.CreateOptions) { o.Policy = req.Options.Policy })
	}
	return s.hub.Workflows().Create(req.WorkflowID, req.Tasks, optFns...)
}

func (s *Server) handleGetWorkflow(c *gin.Context) {
	wf, err := s.hub.Workflows().Get(c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, wf)
}

func (s *Server) handleExecuteWorkflow(c *gin.Context) {
	if async, _ := strconv.ParseBool(c.Query("async")); async {
		if err := s.hub.Workflows().ExecuteAsync(c.Param("id")); err != nil {
			s.writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"workflow_id": c.Param("id"), "status": core.WorkflowRunning})
		return
	}
	summary, err := s.hub.Workflows().Execute(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": summary.Status == core.WorkflowSucceeded, "summary": summary})
}

func (s *Server) handleCancelWorkflow(c *gin.Context) {
	if err := s.hub.Workflows().Cancel(c.Param("id")); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"workflow_id": c.Param("id"), "cancelled": true})
}

type workflowSetupRequest struct {
	Agents   []registerAgentRequest `json:"agents,omitempty"`
	Workflow createWorkflowRequest  `json:"workflow" binding:"required"`
	Execute  bool                   `json:"execute,omitempty"`
}

// handleWorkflowSetup provisions agents and a workflow from one templated
// configuration, optionally executing it in the same call.
func (s *Server) handleWorkflowSetup(c *gin.Context) {
	var req workflowSetupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeBindError(c, err)
		return
	}
	for _, a := range req.Agents {
		if _, err := s.hub.RegisterAgent(a.Agent, a.ProviderConfig); err != nil {
			s.writeError(c, err)
			return
		}
	}
	id, err := s.createWorkflow(req.Workflow)
	if err != nil {
		s.writeError(c, err)
		return
	}
	if !req.Execute {
		c.JSON(http.StatusOK, gin.H{"workflow_id": id})
		return
	}
	summary, err := s.hub.Workflows().Execute(c.Request.Context(), id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"workflow_id": id, "success": summary.Status == core.WorkflowSucceeded, "summary": summary})
}

package slack

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
)

// Server exposes the slash-command and Events API endpoints. Every request
// is checked against the app signing secret before it is parsed.
type Server struct {
	commands      *CommandHandler
	mentions      *MessageHandler
	signingSecret string
	logger        *logrus.Logger
}

func NewServer(commands *CommandHandler, mentions *MessageHandler, signingSecret string, logger *logrus.Logger) *Server {
	if logger == nil {
		logger = logrus.New()
	}
	return &Server{
		commands:      commands,
		mentions:      mentions,
		signingSecret: signingSecret,
		logger:        logger,
	}
}

// Register mounts the Slack endpoints on a gin router group
func (s *Server) Register(r gin.IRoutes) {
	r.POST("/slack/commands", s.handleCommand)
	r.POST("/slack/events", s.handleEvents)
}

func (s *Server) handleCommand(c *gin.Context) {
	body, ok := s.verify(c)
	if !ok {
		return
	}

	c.Request.Body = io.NopCloser(bytes.NewReader(body))
	cmd, err := slack.SlashCommandParse(c.Request)
	if err != nil {
		s.logger.WithError(err).Warn("Error parsing slash command")
		c.AbortWithStatus(http.StatusBadRequest)
		return
	}

	reply := s.commands.Dispatch(c.Request.Context(), cmd.ChannelID, cmd.Text)
	c.JSON(http.StatusOK, slack.Msg{
		ResponseType: slack.ResponseTypeInChannel,
		Text:         reply,
	})
}

func (s *Server) handleEvents(c *gin.Context) {
	body, ok := s.verify(c)
	if !ok {
		return
	}

	eventsAPIEvent, err := slackevents.ParseEvent(json.RawMessage(body), slackevents.OptionNoVerifyToken())
	if err != nil {
		s.logger.WithError(err).Warn("Error parsing event")
		c.AbortWithStatus(http.StatusBadRequest)
		return
	}

	if eventsAPIEvent.Type == slackevents.URLVerification {
		var challenge slackevents.ChallengeResponse
		if err := json.Unmarshal(body, &challenge); err != nil {
			s.logger.WithError(err).Warn("Error unmarshaling challenge")
			c.AbortWithStatus(http.StatusBadRequest)
			return
		}
		c.String(http.StatusOK, challenge.Challenge)
		return
	}

	if eventsAPIEvent.Type == slackevents.CallbackEvent {
		innerEvent := eventsAPIEvent.InnerEvent
		switch ev := innerEvent.Data.(type) {
		case *slackevents.AppMentionEvent:
			if s.mentions == nil {
				break
			}
			if err := s.mentions.HandleAppMention(c.Request.Context(), ev); err != nil {
				s.logger.WithError(err).Error("Error handling mention")
			}
		default:
			s.logger.WithField("event_type", innerEvent.Type).Debug("Ignoring unsupported event type")
		}
	}

	c.Status(http.StatusOK)
}

// verify reads the body and checks the request signature. On failure the
// response has already been written.
func (s *Server) verify(c *gin.Context) ([]byte, bool) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		s.logger.WithError(err).Warn("Error reading body")
		c.AbortWithStatus(http.StatusBadRequest)
		return nil, false
	}

	sv, err := slack.NewSecretsVerifier(c.Request.Header, s.signingSecret)
	if err != nil {
		s.logger.WithError(err).Warn("Error creating secrets verifier")
		c.AbortWithStatus(http.StatusUnauthorized)
		return nil, false
	}
	if _, err := sv.Write(body); err != nil {
		c.AbortWithStatus(http.StatusInternalServerError)
		return nil, false
	}
	if err := sv.Ensure(); err != nil {
		s.logger.WithError(err).Warn("Error verifying signature")
		c.AbortWithStatus(http.StatusUnauthorized)
		return nil, false
	}
	return body, true
}

package handlers

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"payments-service/domain"
)

var ErrAuthServiceUnavailable = errors.New("authorization service is not available")

// AuthClient resolves the logged-in user from the auth service. Calls run
// through a circuit breaker with exponential backoff retries, like every
// other inter-service call in this deployment.
type AuthClient struct {
	BaseURL        string
	Tracer         trace.Tracer
	CircuitBreaker *gobreaker.CircuitBreaker
}

func NewAuthClient(baseURL string, tr trace.Tracer) *AuthClient {
	circuitBreaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name: "AuthHTTPSRequest",
	})

	return &AuthClient{
		BaseURL:        baseURL,
		Tracer:         tr,
		CircuitBreaker: circuitBreaker,
	}
}

func (a *AuthClient) CurrentUser(ctx context.Context, token string) (*domain.User, error) {
	spanCtx, span := a.Tracer.Start(ctx, "AuthClient.CurrentUser")
	defer span.End()

	url := a.BaseURL + "/api/users/currentUser"
	resp, err := a.performAuthorizationRequestWithCircuitBreaker(spanCtx, token, url)
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) {
			span.SetStatus(codes.Error, "Circuit is open. Authorization service is not available.")
			return nil, ErrAuthServiceUnavailable
		}
		span.SetStatus(codes.Error, err.Error())
		return nil, ErrAuthServiceUnavailable
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		span.SetStatus(codes.Error, "Unauthorized")
		return nil, errors.New("unauthorized")
	}

	var response struct {
		LoggedInUser domain.User `json:"user"`
		Message      string      `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	return &response.LoggedInUser, nil
}

func (a *AuthClient) performAuthorizationRequestWithCircuitBreaker(ctx context.Context, token string, url string) (*http.Response, error) {
	maxRetries := 3

	retryOperation := func() (interface{}, error) {
		tr := http.DefaultTransport.(*http.Transport).Clone()
		tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}

		req, err := http.NewRequest("GET", url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", token)
		otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

		client := &http.Client{Transport: tr, Timeout: 10 * time.Second}
		resp, err := client.Do(req.WithContext(ctx))
		if err != nil {
			return nil, err
		}
		return resp, nil
	}

	result, err := a.CircuitBreaker.Execute(func() (interface{}, error) {
		return retryOperationWithExponentialBackoff(ctx, maxRetries, retryOperation)
	})
	if err != nil {
		return nil, err
	}
	resp, ok := result.(*http.Response)
	if !ok {
		return nil, errors.New("unexpected response type from Circuit Breaker")
	}
	return resp, nil
}

func retryOperationWithExponentialBackoff(ctx context.Context, maxRetries int, operation func() (interface{}, error)) (interface{}, error) {
	for attempt := 1; attempt <= maxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		result, err := operation()
		if err == nil {
			return result, nil
		}
		if attempt == maxRetries {
			break
		}
		backoff := time.Duration(attempt*attempt) * time.Second
		time.Sleep(backoff)
	}
	return nil, errors.New("max retries exceeded")
}

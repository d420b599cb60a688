package paramstore

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/require"
)

type fakeSSM struct {
	out *ssm.GetParameterOutput
	err error
	in  *ssm.GetParameterInput
}

func (f *fakeSSM) GetParameter(_ context.Context, in *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	f.in = in
	return f.out, f.err
}

func parameter(value *string) *ssm.GetParameterOutput {
	return &ssm.GetParameterOutput{Parameter: &types.Parameter{
		Name:  aws.String("/pipedrive-agent/pipedrive-token"),
		Type:  types.ParameterTypeSecureString,
		Value: value,
	}}
}

func TestNew_NilAPI(t *testing.T) {
	_, err := New(nil)
	require.ErrorContains(t, err, "must not be nil")
}

func TestGetParameter_DecryptsByName(t *testing.T) {
	api := &fakeSSM{out: parameter(aws.String(`{"token":"pd-1"}`))}
	client, err := New(api)
	require.NoError(t, err)

	v, err := client.GetParameter(context.Background(), " /pipedrive-agent/pipedrive-token ")
	require.NoError(t, err)
	require.Equal(t, `{"token":"pd-1"}`, v)
	require.Equal(t, "/pipedrive-agent/pipedrive-token", aws.ToString(api.in.Name))
	require.True(t, aws.ToBool(api.in.WithDecryption))
}

func TestGetParameter_Errors(t *testing.T) {
	cases := []struct {
		name   string
		client *Client
		param  string
		want   string
		is     error
	}{
		{name: "not initialized", client: &Client{}, param: "/p", want: "not initialized"},
		{name: "empty name", client: &Client{api: &fakeSSM{}}, param: "  ", want: "required"},
		{name: "missing value", client: &Client{api: &fakeSSM{out: parameter(nil)}}, param: "/p", want: "no value"},
		{name: "nil output", client: &Client{api: &fakeSSM{}}, param: "/p", want: "no value"},
		{name: "api error", client: &Client{api: &fakeSSM{err: errors.New("throttled")}}, param: "/p", want: "throttled"},
		{name: "not found", client: &Client{api: &fakeSSM{err: &types.ParameterNotFound{Message: aws.String("nope")}}}, param: "/p", want: `"/p"`, is: ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.client.GetParameter(context.Background(), tc.param)
			require.ErrorContains(t, err, tc.want)
			if tc.is != nil {
				require.ErrorIs(t, err, tc.is)
			}
		})
	}
}

func TestStatic_GetParameter(t *testing.T) {
	s := Static{"/app/pipedrive-token": `{"token":"abc"}`}
	v, err := s.GetParameter(context.Background(), " /app/pipedrive-token ")
	require.NoError(t, err)
	require.Equal(t, `{"token":"abc"}`, v)

	_, err = s.GetParameter(context.Background(), "/app/missing")
	require.ErrorIs(t, err, ErrNotFound)
}

// fakeGetter is a minimal Getter stub.
type fakeGetter struct {
	val string
	err error
}

func (f *fakeGetter) GetParameter(_ context.Context, _ string) (string, error) {
	return f.val, f.err
}

func TestToken_JSONToken(t *testing.T) {
	key, err := Token(context.Background(), &fakeGetter{val: `{"token":"pd-123"}`}, "/app/pipedrive-token")
	require.NoError(t, err)
	require.Equal(t, "pd-123", key)
}

func TestToken_Errors(t *testing.T) {
	cases := []struct {
		name   string
		getter Getter
		param  string
		want   string
	}{
		{name: "nil getter", getter: nil, param: "/p", want: "nil"},
		{name: "empty name", getter: &fakeGetter{val: `{"token":"x"}`}, param: " ", want: "empty"},
		{name: "getter error", getter: &fakeGetter{err: errors.New("ssm unavailable")}, param: "/p", want: "ssm unavailable"},
		{name: "malformed", getter: &fakeGetter{val: `{"broken`}, param: "/p", want: "unmarshal"},
		{name: "missing field", getter: &fakeGetter{val: `{"other":"v"}`}, param: "/p", want: "is empty"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Token(context.Background(), tc.getter, tc.param)
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestStaticToken_RoundTripsThroughToken(t *testing.T) {
	s := Static{"/p": StaticToken("sk-local")}
	key, err := Token(context.Background(), s, "/p")
	require.NoError(t, err)
	require.Equal(t, "sk-local", key)
}

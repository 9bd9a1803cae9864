// Package identity exposes the authenticated user's profile and address book
// to the checkout flow.
package identity

import (
	"context"
	"fmt"
	"strings"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/imrishuroy/campus-checkout/internal/apperr"
	"github.com/imrishuroy/campus-checkout/internal/aws"
)

type User struct {
	UserID    string `dynamodbav:"user_id" json:"id"`
	Email     string `dynamodbav:"email" json:"email"`
	FirstName string `dynamodbav:"first_name,omitempty" json:"first_name,omitempty"`
	LastName  string `dynamodbav:"last_name,omitempty" json:"last_name,omitempty"`
	Phone     string `dynamodbav:"phone,omitempty" json:"phone,omitempty"`
	IsSeller  bool   `dynamodbav:"is_seller" json:"is_seller"`
	IsStaff   bool   `dynamodbav:"is_staff" json:"is_staff"`
}

func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

type Address struct {
	AddressID     string `dynamodbav:"address_id" json:"id"`
	UserID        string `dynamodbav:"user_id" json:"user_id"`
	FullName      string `dynamodbav:"full_name,omitempty" json:"full_name,omitempty"`
	Phone         string `dynamodbav:"phone,omitempty" json:"phone,omitempty"`
	StreetAddress string `dynamodbav:"street_address" json:"street_address"`
	Apartment     string `dynamodbav:"apartment,omitempty" json:"apartment,omitempty"`
	City          string `dynamodbav:"city" json:"city"`
	State         string `dynamodbav:"state,omitempty" json:"state,omitempty"`
	PostalCode    string `dynamodbav:"postal_code,omitempty" json:"postal_code,omitempty"`
	Country       string `dynamodbav:"country" json:"country"`
	IsDefault     bool   `dynamodbav:"is_default" json:"is_default"`
}

// Repository reads users and addresses. Missing rows return (nil, nil).
type Repository interface {
	GetUser(ctx context.Context, userID string) (*User, error)
	GetAddress(ctx context.Context, addressID string) (*Address, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// User returns the profile for userID or NotFound.
func (s *Service) User(ctx context.Context, userID string) (*User, error) {
	u, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", userID, err)
	}
	if u == nil {
		return nil, apperr.NotFound("user not found")
	}
	return u, nil
}

// OwnedAddress returns the address when it belongs to userID. An empty id
// yields (nil, nil); an address of another user is reported as NotFound.
func (s *Service) OwnedAddress(ctx context.Context, userID, addressID string) (*Address, error) {
	if addressID == "" {
		return nil, nil
	}
	a, err := s.repo.GetAddress(ctx, addressID)
	if err != nil {
		return nil, fmt.Errorf("get address %s: %w", addressID, err)
	}
	if a == nil || a.UserID != userID {
		return nil, apperr.NotFound("address not found")
	}
	return a, nil
}

// Store is the DynamoDB-backed Repository.
type Store struct {
	client    aws.DynamoDBAPI
	users     string
	addresses string
}

func NewStore(client aws.DynamoDBAPI, usersTable, addressesTable string) *Store {
	return &Store{client: client, users: usersTable, addresses: addressesTable}
}

func (s *Store) GetUser(ctx context.Context, userID string) (*User, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: sdkaws.String(s.users),
		Key:       map[string]types.AttributeValue{"user_id": aws.S(userID)},
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var u User
	if err := attributevalue.UnmarshalMap(out.Item, &u); err != nil {
		return nil, fmt.Errorf("unmarshal user: %w", err)
	}
	return &u, nil
}

func (s *Store) GetAddress(ctx context.Context, addressID string) (*Address, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: sdkaws.String(s.addresses),
		Key:       map[string]types.AttributeValue{"address_id": aws.S(addressID)},
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var a Address
	if err := attributevalue.UnmarshalMap(out.Item, &a); err != nil {
		return nil, fmt.Errorf("unmarshal address: %w", err)
	}
	return &a, nil
}

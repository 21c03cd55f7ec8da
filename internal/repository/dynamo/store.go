// Package dynamo stores users and sessions in DynamoDB. Pairs are claimed
// with TransactWriteItems so both conditional claims and the session put
// succeed or fail together.
package dynamo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"meal-match-backend/internal/config"
	"meal-match-backend/internal/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog/log"
)

type userItem struct {
	ID                 string    `dynamodbav:"id"`
	Eligible           bool      `dynamodbav:"eligible"`
	PreferredTimeslots []string  `dynamodbav:"preferredTimeslots"`
	EligibleSince      int64     `dynamodbav:"eligibleSince"`
	CreatedAt          time.Time `dynamodbav:"createdAt"`
}

type sessionItem struct {
	ID           string    `dynamodbav:"id"`
	Participants []string  `dynamodbav:"participants"`
	CreatedAt    time.Time `dynamodbav:"createdAt"`
}

// Store is the DynamoDB backend
type Store struct {
	client        *dynamodb.Client
	usersTable    string
	sessionsTable string
	now           func() time.Time
}

// NewClient builds a DynamoDB client. Static credentials and a custom
// endpoint are only used when configured.
func NewClient(ctx context.Context, cfg config.DynamoDBConfig) (*dynamodb.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	}), nil
}

// NewStore creates a store over the configured tables
func NewStore(client *dynamodb.Client, cfg config.DynamoDBConfig) *Store {
	return &Store{
		client:        client,
		usersTable:    cfg.UsersTable,
		sessionsTable: cfg.SessionsTable,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// EnsureTables creates the users and sessions tables when they are missing
func (s *Store) EnsureTables(ctx context.Context) error {
	for _, table := range []string{s.usersTable, s.sessionsTable} {
		_, err := s.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(table)})
		if err == nil {
			continue
		}
		var notFound *types.ResourceNotFoundException
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to describe table '%s': %w", table, err)
		}

		_, err = s.client.CreateTable(ctx, &dynamodb.CreateTableInput{
			TableName: aws.String(table),
			AttributeDefinitions: []types.AttributeDefinition{
				{AttributeName: aws.String("id"), AttributeType: types.ScalarAttributeTypeS},
			},
			KeySchema: []types.KeySchemaElement{
				{AttributeName: aws.String("id"), KeyType: types.KeyTypeHash},
			},
			BillingMode: types.BillingModePayPerRequest,
		})
		if err != nil {
			return fmt.Errorf("failed to create table '%s': %w", table, err)
		}

		waiter := dynamodb.NewTableExistsWaiter(s.client)
		if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(table)}, 2*time.Minute); err != nil {
			return fmt.Errorf("failed waiting for table '%s': %w", table, err)
		}
		log.Info().Str("table", table).Msg("DynamoDB table created")
	}
	return nil
}

// Create creates a new user
func (s *Store) Create(ctx context.Context, user *models.User) error {
	item, err := attributevalue.MarshalMap(toUserItem(user))
	if err != nil {
		return fmt.Errorf("failed to marshal user: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.usersTable),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(id)"),
	})
	if err != nil {
		if isConditionFailed(err) {
			return models.ErrUserExists
		}
		return fmt.Errorf("failed to put user in table '%s': %w", s.usersTable, err)
	}
	return nil
}

// GetByID retrieves a user by ID
func (s *Store) GetByID(ctx context.Context, id string) (*models.User, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.usersTable),
		Key:            userKey(id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get user from table '%s': %w", s.usersTable, err)
	}
	if out.Item == nil {
		return nil, models.ErrUserNotFound
	}
	return unmarshalUser(out.Item)
}

// SetEligible sets the eligibility flag. eligibleSince is stamped only when
// the user was ineligible, which takes a conditional first attempt.
func (s *Store) SetEligible(ctx context.Context, id string, eligible bool) (*models.User, error) {
	if eligible {
		attrs, err := s.update(ctx, id,
			"SET eligible = :t, eligibleSince = :now",
			"attribute_exists(id) AND eligible = :f",
			map[string]types.AttributeValue{
				":t":   &types.AttributeValueMemberBOOL{Value: true},
				":f":   &types.AttributeValueMemberBOOL{Value: false},
				":now": &types.AttributeValueMemberN{Value: fmt.Sprint(s.now().UnixNano())},
			},
		)
		if err == nil {
			return unmarshalUser(attrs)
		}
		if !isConditionFailed(err) {
			return nil, err
		}
	}

	attrs, err := s.update(ctx, id,
		"SET eligible = :e",
		"attribute_exists(id)",
		map[string]types.AttributeValue{":e": &types.AttributeValueMemberBOOL{Value: eligible}},
	)
	if err != nil {
		if isConditionFailed(err) {
			return nil, models.ErrUserNotFound
		}
		return nil, err
	}
	return unmarshalUser(attrs)
}

func (s *Store) update(ctx context.Context, id, expr, cond string, values map[string]types.AttributeValue) (map[string]types.AttributeValue, error) {
	out, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.usersTable),
		Key:                       userKey(id),
		UpdateExpression:          aws.String(expr),
		ConditionExpression:       aws.String(cond),
		ExpressionAttributeValues: values,
		ReturnValues:              types.ReturnValueAllNew,
	})
	if err != nil {
		if isConditionFailed(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to update user in table '%s': %w", s.usersTable, err)
	}
	return out.Attributes, nil
}

// EligibleForTimeslot scans for eligible users preferring the timeslot and
// orders them by eligibility time, then id. Each call reads the whole users
// table; a sparse index over eligible users would bound it to the pool.
func (s *Store) EligibleForTimeslot(ctx context.Context, slot models.Timeslot) ([]string, error) {
	paginator := dynamodb.NewScanPaginator(s.client, &dynamodb.ScanInput{
		TableName:            aws.String(s.usersTable),
		FilterExpression:     aws.String("eligible = :t AND contains(preferredTimeslots, :slot)"),
		ProjectionExpression: aws.String("id, eligibleSince"),
		ConsistentRead:       aws.Bool(true),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":t":    &types.AttributeValueMemberBOOL{Value: true},
			":slot": &types.AttributeValueMemberS{Value: string(slot)},
		},
	})

	var items []userItem
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to scan table '%s': %w", s.usersTable, err)
		}
		var batch []userItem
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			return nil, fmt.Errorf("failed to unmarshal users: %w", err)
		}
		items = append(items, batch...)
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].EligibleSince != items[j].EligibleSince {
			return items[i].EligibleSince < items[j].EligibleSince
		}
		return items[i].ID < items[j].ID
	})

	ids := make([]string, len(items))
	for i, item := range items {
		ids[i] = item.ID
	}
	return ids, nil
}

// CommitPair claims both participants and writes the session in one transaction
func (s *Store) CommitPair(ctx context.Context, session *models.Session) error {
	sessionAV, err := attributevalue.MarshalMap(sessionItem{
		ID:           session.ID,
		Participants: session.Participants[:],
		CreatedAt:    session.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	claim := func(userID string) types.TransactWriteItem {
		return types.TransactWriteItem{Update: &types.Update{
			TableName:           aws.String(s.usersTable),
			Key:                 userKey(userID),
			UpdateExpression:    aws.String("SET eligible = :f"),
			ConditionExpression: aws.String("eligible = :t"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":t": &types.AttributeValueMemberBOOL{Value: true},
				":f": &types.AttributeValueMemberBOOL{Value: false},
			},
		}}
	}

	_, err = s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		ClientRequestToken: aws.String(session.ID),
		TransactItems: []types.TransactWriteItem{
			claim(session.Participants[0]),
			claim(session.Participants[1]),
			{Put: &types.Put{
				TableName:           aws.String(s.sessionsTable),
				Item:                sessionAV,
				ConditionExpression: aws.String("attribute_not_exists(id)"),
			}},
		},
	})
	if err != nil {
		if isClaimConflict(err) {
			return models.ErrClaimConflict
		}
		return fmt.Errorf("failed to commit session: %w", err)
	}
	return nil
}

// Close is a no-op; the SDK client holds no resources that need releasing
func (s *Store) Close() error {
	return nil
}

func userKey(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{"id": &types.AttributeValueMemberS{Value: id}}
}

func toUserItem(user *models.User) userItem {
	item := userItem{
		ID:                 user.ID,
		Eligible:           user.Eligible,
		PreferredTimeslots: make([]string, len(user.PreferredTimeslots)),
		CreatedAt:          user.CreatedAt.UTC(),
	}
	for i, slot := range user.PreferredTimeslots {
		item.PreferredTimeslots[i] = string(slot)
	}
	if !user.EligibleSince.IsZero() {
		item.EligibleSince = user.EligibleSince.UnixNano()
	}
	return item
}

func unmarshalUser(av map[string]types.AttributeValue) (*models.User, error) {
	var item userItem
	if err := attributevalue.UnmarshalMap(av, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal user: %w", err)
	}

	user := &models.User{
		ID:                 item.ID,
		Eligible:           item.Eligible,
		PreferredTimeslots: make([]models.Timeslot, len(item.PreferredTimeslots)),
		CreatedAt:          item.CreatedAt,
	}
	for i, slot := range item.PreferredTimeslots {
		user.PreferredTimeslots[i] = models.Timeslot(slot)
	}
	if item.EligibleSince != 0 {
		user.EligibleSince = time.Unix(0, item.EligibleSince).UTC()
	}
	return user, nil
}

func isConditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}

// isClaimConflict reports whether a cancelled transaction lost the claim,
// either on a condition or to a concurrent transaction on the same user.
// Throttling and validation cancellations stay failures.
func isClaimConflict(err error) bool {
	var tce *types.TransactionCanceledException
	if !errors.As(err, &tce) {
		return false
	}
	for _, reason := range tce.CancellationReasons {
		switch aws.ToString(reason.Code) {
		case "ConditionalCheckFailed", "TransactionConflict":
			return true
		}
	}
	return false
}

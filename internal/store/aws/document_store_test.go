package aws

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/deskbook/internal/models"
	"github.com/wolfeidau/deskbook/internal/store"
)

// fakeDynamoDB records requests and returns canned responses.
type fakeDynamoDB struct {
	getItem     map[string]types.AttributeValue
	queryItems  []map[string]types.AttributeValue
	err         error
	lastGet     *dynamodb.GetItemInput
	lastQuery   *dynamodb.QueryInput
	lastUpdate  *dynamodb.UpdateItemInput
	lastPut     *dynamodb.PutItemInput
	lastTransac *dynamodb.TransactWriteItemsInput
}

func (f *fakeDynamoDB) GetItem(ctx context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.lastGet = in
	if f.err != nil {
		return nil, f.err
	}
	return &dynamodb.GetItemOutput{Item: f.getItem}, nil
}

func (f *fakeDynamoDB) PutItem(ctx context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.lastPut = in
	return &dynamodb.PutItemOutput{}, f.err
}

func (f *fakeDynamoDB) UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.lastUpdate = in
	if f.err != nil {
		return nil, f.err
	}
	return &dynamodb.UpdateItemOutput{Attributes: f.getItem}, nil
}

func (f *fakeDynamoDB) DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	return &dynamodb.DeleteItemOutput{}, f.err
}

func (f *fakeDynamoDB) Scan(ctx context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &dynamodb.ScanOutput{Items: f.queryItems}, nil
}

func (f *fakeDynamoDB) Query(ctx context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.lastQuery = in
	if f.err != nil {
		return nil, f.err
	}
	return &dynamodb.QueryOutput{Items: f.queryItems}, nil
}

func (f *fakeDynamoDB) TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, _ ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	f.lastTransac = in
	return &dynamodb.TransactWriteItemsOutput{}, f.err
}

var testTables = TableNames{
	models.CollectionOrganizations: "test_organizations",
	models.CollectionOffices:       "test_offices",
	models.CollectionReservations:  "test_reservations",
}

func marshalItem(t *testing.T, v any) map[string]types.AttributeValue {
	t.Helper()
	av, err := attributevalue.MarshalMap(v)
	require.NoError(t, err)
	return av
}

func TestDocumentStore_Get(t *testing.T) {
	ctx := context.Background()

	t.Run("missing item is not found", func(t *testing.T) {
		fake := &fakeDynamoDB{}
		st := NewDocumentStore(fake, testTables)

		var office models.Office
		err := st.Get(ctx, models.CollectionOffices, "o1", &office)
		require.ErrorIs(t, err, store.ErrNotFound)
		require.True(t, aws.ToBool(fake.lastGet.ConsistentRead))
		require.Equal(t, "test_offices", aws.ToString(fake.lastGet.TableName))
	})

	t.Run("decodes item", func(t *testing.T) {
		fake := &fakeDynamoDB{getItem: marshalItem(t, &models.Office{ID: "o1", Name: "HQ", Capacity: 4, Occupied: 1})}
		st := NewDocumentStore(fake, testTables)

		var office models.Office
		require.NoError(t, st.Get(ctx, models.CollectionOffices, "o1", &office))
		require.Equal(t, "HQ", office.Name)
		require.Equal(t, 1, office.Occupied)
	})

	t.Run("unknown collection", func(t *testing.T) {
		st := NewDocumentStore(&fakeDynamoDB{}, TableNames{})
		var office models.Office
		require.Error(t, st.Get(ctx, models.CollectionOffices, "o1", &office))
	})
}

func TestDocumentStore_QueryByIndex(t *testing.T) {
	ctx := context.Background()
	fake := &fakeDynamoDB{queryItems: []map[string]types.AttributeValue{
		marshalItem(t, &models.Reservation{ID: "r1", OfficeID: "o1", User: "bob"}),
	}}
	st := NewDocumentStore(fake, testTables)

	var reservations []*models.Reservation
	require.NoError(t, st.QueryByIndex(ctx, models.CollectionReservations, models.FieldOfficeID, "o1", &reservations))
	require.Len(t, reservations, 1)
	require.Equal(t, "officeId", aws.ToString(fake.lastQuery.IndexName))
	require.Contains(t, fake.lastQuery.ExpressionAttributeNames, "#0")

	err := st.QueryByIndex(ctx, models.CollectionReservations, models.FieldFromTime, "x", &reservations)
	require.ErrorIs(t, err, store.ErrInvalidIndex)
}

func TestDocumentStore_Update(t *testing.T) {
	ctx := context.Background()

	t.Run("conditions on existence", func(t *testing.T) {
		fake := &fakeDynamoDB{getItem: marshalItem(t, &models.Organization{ID: "org1", Name: "New"})}
		st := NewDocumentStore(fake, testTables)

		var org models.Organization
		err := st.Update(ctx, models.CollectionOrganizations, "org1",
			[]store.Assignment{store.SetField{Field: models.FieldName, Value: "New"}}, &org)
		require.NoError(t, err)
		require.Equal(t, "New", org.Name)
		require.Contains(t, aws.ToString(fake.lastUpdate.ConditionExpression), "attribute_exists")
		require.Contains(t, aws.ToString(fake.lastUpdate.UpdateExpression), "SET")
		require.Equal(t, types.ReturnValueAllNew, fake.lastUpdate.ReturnValues)
	})

	t.Run("missing item is not found", func(t *testing.T) {
		fake := &fakeDynamoDB{err: &types.ConditionalCheckFailedException{Message: aws.String("failed")}}
		st := NewDocumentStore(fake, testTables)

		err := st.Update(ctx, models.CollectionOrganizations, "org1",
			[]store.Assignment{store.SetField{Field: models.FieldName, Value: "New"}}, nil)
		require.ErrorIs(t, err, store.ErrNotFound)
	})
}

func TestDocumentStore_Put(t *testing.T) {
	ctx := context.Background()

	fake := &fakeDynamoDB{}
	st := NewDocumentStore(fake, testTables)
	org := &models.Organization{ID: "org1", Name: "Org", Offices: []string{}}
	require.NoError(t, st.Put(ctx, models.CollectionOrganizations, org, store.ItemAbsent{}))
	require.Contains(t, aws.ToString(fake.lastPut.ConditionExpression), "attribute_not_exists")

	require.NoError(t, st.Put(ctx, models.CollectionOrganizations, org))
	require.Nil(t, fake.lastPut.ConditionExpression)

	fake.err = &types.ConditionalCheckFailedException{Message: aws.String("exists")}
	require.ErrorIs(t, st.Put(ctx, models.CollectionOrganizations, org, store.ItemAbsent{}), store.ErrConflict)
}

func TestDocumentStore_AtomicBatch(t *testing.T) {
	ctx := context.Background()

	t.Run("translates writes", func(t *testing.T) {
		fake := &fakeDynamoDB{}
		st := NewDocumentStore(fake, testTables)

		office := &models.Office{ID: "o1", OrganizationID: "org1", Name: "HQ", Type: models.OfficeTypeSimple, Capacity: 2}
		err := st.AtomicBatch(ctx, []store.Write{
			store.UpdateItem(models.CollectionOrganizations, "org1",
				[]store.Assignment{store.AppendToList{Field: models.FieldOffices, Value: "o1"}},
				store.ItemExists{},
				store.ListExcludes{Field: models.FieldOffices, Value: "o1"}),
			store.PutItem(models.CollectionOffices, office, store.ItemAbsent{}),
			store.UpdateItem(models.CollectionOffices, "o2",
				[]store.Assignment{store.IncrementField{Field: models.FieldOccupied, Delta: -1}},
				store.FieldGreaterThan{Field: models.FieldOccupied, Value: 0}),
			store.UpdateItem(models.CollectionOrganizations, "org2",
				[]store.Assignment{store.RemoveListIndex{Field: models.FieldOffices, Index: 3}},
				store.ListIndexEquals{Field: models.FieldOffices, Index: 3, Value: "o9"},
				store.ListSizeEquals{Field: models.FieldOffices, Size: 4}),
			store.DeleteItem(models.CollectionReservations, "r1", store.ItemExists{}),
		})
		require.NoError(t, err)

		items := fake.lastTransac.TransactItems
		require.Len(t, items, 5)

		appendOffice := items[0].Update
		require.NotNil(t, appendOffice)
		require.Equal(t, "test_organizations", aws.ToString(appendOffice.TableName))
		require.Contains(t, aws.ToString(appendOffice.UpdateExpression), "list_append")
		require.Contains(t, aws.ToString(appendOffice.UpdateExpression), "if_not_exists")
		require.Contains(t, aws.ToString(appendOffice.ConditionExpression), "attribute_exists")
		require.Contains(t, aws.ToString(appendOffice.ConditionExpression), "NOT")
		require.Contains(t, aws.ToString(appendOffice.ConditionExpression), "contains")

		put := items[1].Put
		require.NotNil(t, put)
		require.Contains(t, aws.ToString(put.ConditionExpression), "attribute_not_exists")
		require.Equal(t, &types.AttributeValueMemberS{Value: "org1"}, put.Item["organizationId"])

		decrement := items[2].Update
		require.Contains(t, aws.ToString(decrement.UpdateExpression), "-")
		require.Contains(t, aws.ToString(decrement.ConditionExpression), ">")

		removeSlot := items[3].Update
		require.Contains(t, aws.ToString(removeSlot.UpdateExpression), "REMOVE")
		require.Contains(t, aws.ToString(removeSlot.UpdateExpression), "[3]")
		require.Contains(t, aws.ToString(removeSlot.ConditionExpression), "size")

		del := items[4].Delete
		require.NotNil(t, del)
		require.Equal(t, &types.AttributeValueMemberS{Value: "r1"}, del.Key["id"])
	})

	t.Run("cancelled transaction is a conflict", func(t *testing.T) {
		fake := &fakeDynamoDB{err: &types.TransactionCanceledException{
			Message: aws.String("Transaction cancelled"),
			CancellationReasons: []types.CancellationReason{
				{Code: aws.String("None")},
				{Code: aws.String("ConditionalCheckFailed")},
			},
		}}
		st := NewDocumentStore(fake, testTables)

		err := st.AtomicBatch(ctx, []store.Write{store.DeleteItem(models.CollectionOffices, "o1", store.ItemExists{})})
		require.ErrorIs(t, err, store.ErrConflict)
	})

	t.Run("invalid batch never reaches dynamodb", func(t *testing.T) {
		fake := &fakeDynamoDB{}
		st := NewDocumentStore(fake, testTables)

		require.ErrorIs(t, st.AtomicBatch(ctx, nil), store.ErrInvalidBatch)
		require.Nil(t, fake.lastTransac)
	})
}

func TestWrapAWSError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"conditional check", &types.ConditionalCheckFailedException{}, store.ErrConflict},
		{"transaction conflict", &types.TransactionConflictException{}, store.ErrConflict},
		{"throughput exceeded", &types.ProvisionedThroughputExceededException{}, store.ErrUnavailable},
		{"throttling api error", &smithy.GenericAPIError{Code: "ThrottlingException"}, store.ErrUnavailable},
		{"cancelled by throttling", &types.TransactionCanceledException{
			CancellationReasons: []types.CancellationReason{{Code: aws.String("ThrottlingError")}},
		}, store.ErrUnavailable},
		{"cancelled by validation", &types.TransactionCanceledException{
			CancellationReasons: []types.CancellationReason{{Code: aws.String("ValidationError")}},
		}, store.ErrInvalidBatch},
		{"transport failure", errors.New("dial tcp: connection refused"), store.ErrUnavailable},
		{"deadline", context.DeadlineExceeded, context.DeadlineExceeded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.ErrorIs(t, wrapAWSError(tt.err, "op"), tt.want)
		})
	}

	require.NoError(t, wrapAWSError(nil, "op"))

	other := wrapAWSError(&smithy.GenericAPIError{Code: "ResourceNotFoundException"}, "op")
	require.NotErrorIs(t, other, store.ErrUnavailable)
	require.NotErrorIs(t, other, store.ErrConflict)
}

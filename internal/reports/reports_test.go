package reports

import (
	"bytes"
	"context"
	"encoding/csv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/aethra/makazi/internal/auth"
	"github.com/aethra/makazi/internal/models"
	"github.com/aethra/makazi/internal/testutil"
)

func TestSummary_ScopedToWard(t *testing.T) {
	db := testutil.NewSeededDB(t)
	ctx := context.Background()
	resolver := auth.NewResolver(db, nil, nil)
	svc := NewService(db, resolver, nil)

	north := testutil.Ward(t, db, "North")
	south := testutil.Ward(t, db, "South")
	kisiwani := testutil.Village(t, db, north, "Kisiwani")
	mbuyuni := testutil.Village(t, db, north, "Mbuyuni")
	pwani := testutil.Village(t, db, south, "Pwani")

	collector := testutil.User(t, db, models.RoleDataCollector, nil, nil)
	r1 := testutil.Residence(t, db, collector, kisiwani)
	testutil.Residence(t, db, collector, kisiwani)
	testutil.Residence(t, db, collector, mbuyuni)
	testutil.Residence(t, db, collector, pwani)

	require.NoError(t, db.Create(&models.FamilyMember{
		ResidenceID: r1.ID, FullName: "Child", Gender: "male", Relationship: "son",
		DateOfBirth: r1.DateOfBirth, CreatedBy: collector.ID,
	}).Error)

	weo := testutil.User(t, db, models.RoleWEO, north, nil)
	sum, err := svc.Summary(ctx, testutil.Actor(weo))
	require.NoError(t, err)

	assert.Equal(t, "ward", sum.Scope)
	require.Len(t, sum.Rows, 2)
	assert.Equal(t, "Kisiwani", sum.Rows[0].VillageName)
	assert.EqualValues(t, 2, sum.Rows[0].Residences)
	assert.EqualValues(t, 1, sum.Rows[0].Members)
	assert.EqualValues(t, 0, sum.Rows[0].Adults)
	assert.EqualValues(t, 3, sum.TotalResidences)

	super := testutil.User(t, db, models.RoleSuperAdmin, nil, nil)
	sum, err = svc.Summary(ctx, testutil.Actor(super))
	require.NoError(t, err)
	assert.Equal(t, "global", sum.Scope)
	assert.EqualValues(t, 4, sum.TotalResidences)
}

func TestSummary_UnassignedFieldRoleSeesNothing(t *testing.T) {
	db := testutil.NewSeededDB(t)
	svc := NewService(db, auth.NewResolver(db, nil, nil), nil)

	w := testutil.Ward(t, db, "North")
	v := testutil.Village(t, db, w, "Kisiwani")
	collector := testutil.User(t, db, models.RoleDataCollector, nil, nil)
	testutil.Residence(t, db, collector, v)

	veo := testutil.User(t, db, models.RoleVEO, nil, nil)
	sum, err := svc.Summary(context.Background(), testutil.Actor(veo))
	require.NoError(t, err)
	assert.Empty(t, sum.Rows)
	assert.Zero(t, sum.TotalResidences)
}

func TestCollectorReportsIncludeOwnRegistrations(t *testing.T) {
	db := testutil.NewSeededDB(t)
	ctx := context.Background()
	svc := NewService(db, auth.NewResolver(db, nil, nil), nil)

	north := testutil.Ward(t, db, "North")
	south := testutil.Ward(t, db, "South")
	kisiwani := testutil.Village(t, db, north, "Kisiwani")
	pwani := testutil.Village(t, db, south, "Pwani")

	collector := testutil.User(t, db, models.RoleDataCollector, nil, nil)
	other := testutil.User(t, db, models.RoleDataCollector, nil, kisiwani)
	mine := testutil.Residence(t, db, collector, kisiwani)
	testutil.Residence(t, db, other, kisiwani)

	require.NoError(t, db.Create(&models.ResidenceTransfer{
		Reference: "c0ffee00-0000-4000-8000-000000000001", ResidenceID: mine.ID, RequestedBy: collector.ID,
		FromWardID: north.ID, FromVillageID: kisiwani.ID, ToWardID: south.ID, ToVillageID: pwani.ID,
		Status: models.TransferPendingApproval,
	}).Error)

	sum, err := svc.Summary(ctx, testutil.Actor(collector))
	require.NoError(t, err)
	assert.Equal(t, "none", sum.Scope)
	require.Len(t, sum.Rows, 1)
	assert.EqualValues(t, 1, sum.TotalResidences)
	assert.EqualValues(t, 1, sum.OpenTransfers)

	rows, err := svc.ExportRows(ctx, testutil.Actor(collector))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, mine.ID, rows[0].ID)

	sum, err = svc.Summary(ctx, testutil.Actor(other))
	require.NoError(t, err)
	assert.EqualValues(t, 2, sum.TotalResidences, "the village scope still applies")
}

func TestExportRows_ExcludesBin(t *testing.T) {
	db := testutil.NewSeededDB(t)
	svc := NewService(db, auth.NewResolver(db, nil, nil), nil)

	w := testutil.Ward(t, db, "North")
	v := testutil.Village(t, db, w, "Kisiwani")
	collector := testutil.User(t, db, models.RoleDataCollector, nil, nil)
	kept := testutil.Residence(t, db, collector, v)
	binned := testutil.Residence(t, db, collector, v)
	require.NoError(t, db.Delete(binned).Error)

	admin := testutil.User(t, db, models.RoleAdmin, nil, nil)
	rows, err := svc.ExportRows(context.Background(), testutil.Actor(admin))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, kept.ID, rows[0].ID)
	assert.Equal(t, "North", rows[0].WardName)
	assert.Equal(t, "Kisiwani", rows[0].VillageName)
}

func sampleRows() []ExportRow {
	return []ExportRow{{
		ID:           7,
		HouseNo:      "H-7",
		ResidentName: "Asha, Juma",
		Gender:       "female",
		NIDANumber:   "19900101123450000123",
		Phone:        "0712345678",
		Ownership:    "owner",
		FamilySize:   3,
		WardName:     "North",
		VillageName:  "Kisiwani",
	}}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sampleRows()))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, ExportHeader, records[0])
	assert.Equal(t, "7", records[1][0])
	assert.Equal(t, "Asha, Juma", records[1][2])
	assert.Equal(t, "19900101123450000123", records[1][5])
	assert.Equal(t, "3", records[1][11])
}

func TestBuildXLSX(t *testing.T) {
	data, err := BuildXLSX(sampleRows())
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Residences"}, f.GetSheetList())
	header, err := f.GetCellValue("Residences", "C1")
	require.NoError(t, err)
	assert.Equal(t, "Resident Name", header)
	nida, err := f.GetCellValue("Residences", "F2")
	require.NoError(t, err)
	assert.Equal(t, "19900101123450000123", nida)
}
